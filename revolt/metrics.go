package revolt

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rolesbot",
		Subsystem: "revolt",
		Name:      "requests_total",
		Help:      "Number of REST requests by route and status",
	}, []string{"route", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rolesbot",
		Subsystem: "revolt",
		Name:      "request_duration_seconds",
		Help:      "REST request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	gatewayEventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rolesbot",
		Subsystem: "revolt",
		Name:      "gateway_events_total",
		Help:      "Number of gateway events received by type",
	}, []string{"type"})

	gatewayConnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rolesbot",
		Subsystem: "revolt",
		Name:      "gateway_connects_total",
		Help:      "Number of gateway connection attempts",
	})
)

func init() {
	prometheus.MustRegister(
		requestsCounter,
		requestDuration,
		gatewayEventsCounter,
		gatewayConnectsCounter)
}
