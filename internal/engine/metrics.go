package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analyticDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rapport",
		Subsystem: "engine",
		Name:      "analytic_duration_seconds",
		Help:      "Time spent computing one analytic for one user.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"analytic"})

	analyticFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rapport",
		Subsystem: "engine",
		Name:      "analytic_failures_total",
		Help:      "Analytics that panicked or failed and degraded to an empty result.",
	}, []string{"analytic"})

	graphUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rapport",
		Name:      "graph_users",
		Help:      "Number of user graphs held in memory.",
	})
)
