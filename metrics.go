package rolesbot

import "github.com/prometheus/client_golang/prometheus"

var (
	actorsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rolesbot",
		Subsystem: "queue",
		Name:      "actors",
		Help:      "Number of running per-server role edit actors",
	})

	actionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rolesbot",
		Subsystem: "queue",
		Name:      "actions_total",
		Help:      "Number of role actions enqueued",
	})

	editsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rolesbot",
		Subsystem: "queue",
		Name:      "member_edits_total",
		Help:      "Number of member reconciliations by result",
	}, []string{"result"})

	retryAfterCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rolesbot",
		Subsystem: "queue",
		Name:      "retry_after_total",
		Help:      "Number of member edits that were rate limited",
	})

	eventErrorsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rolesbot",
		Subsystem: "bot",
		Name:      "event_errors_total",
		Help:      "Number of chat events that failed, by event and error kind",
	}, []string{"event", "kind"})
)

const (
	editApplied   = "applied"
	editUnchanged = "unchanged"
	editFailed    = "failed"
	editLimited   = "retry_after"
)

func init() {
	prometheus.MustRegister(
		actorsGauge,
		actionsCounter,
		editsCounter,
		retryAfterCounter,
		eventErrorsCounter)
}
