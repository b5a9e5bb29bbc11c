package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bidaf_export_circuit_state",
		Help: "Export circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	exportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bidaf_export_failures_total",
		Help: "Failed exports to the Flight sink",
	})
)
