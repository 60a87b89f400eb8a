package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups partitioned by cache name and result (hit|miss).",
		},
		[]string{"cache", "result"},
	)

	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Cache invalidations partitioned by cache name and scope (key|prefix|all).",
		},
		[]string{"cache", "scope"},
	)
)

func init() {
	prometheus.MustRegister(lookups, invalidations)
}
