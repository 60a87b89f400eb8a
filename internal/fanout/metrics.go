package fanout

import "github.com/prometheus/client_golang/prometheus"

var (
	subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fanout_subscriptions",
		Help: "Current number of (group, subscriber) memberships.",
	})

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_deliveries_total",
			Help: "Broadcast deliveries partitioned by result (ok|failed).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(subscribers, deliveries)
}
