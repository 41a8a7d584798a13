package cluster

import "github.com/prometheus/client_golang/prometheus"

var (
	rankGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rolesbot",
		Subsystem: "cluster",
		Name:      "rank",
		Help:      "Rank of this member, -1 if unranked",
	})

	sizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rolesbot",
		Subsystem: "cluster",
		Name:      "size",
		Help:      "Number of ranked members",
	})

	leaderGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rolesbot",
		Subsystem: "cluster",
		Name:      "leader",
		Help:      "1 if this member is publishing ranks",
	})

	ownedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rolesbot",
		Subsystem: "cluster",
		Name:      "owned_servers",
		Help:      "Number of servers locked by this member",
	})
)

func init() {
	prometheus.MustRegister(rankGauge, sizeGauge, leaderGauge, ownedGauge)
}
