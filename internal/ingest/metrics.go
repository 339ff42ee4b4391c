package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// interactionsTotal counts boundary events by outcome.
// Labels: result (applied, duplicate, rejected, failed)
var interactionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "rapport",
		Subsystem: "ingest",
		Name:      "interactions_total",
		Help:      "Total number of interaction events by ingest outcome",
	},
	[]string{"result"},
)
