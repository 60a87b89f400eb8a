package socket

import "github.com/prometheus/client_golang/prometheus"

var (
	connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Open websocket connections.",
	})

	// frames counts inbound frames by type; rejected frames are labelled
	// invalid, oversized or rate_limited.
	frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_frames_total",
		Help: "Inbound websocket frames by type.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(connections, frames)
}
