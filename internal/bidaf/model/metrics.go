package model

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration tracks time spent in each stage of the forward pass
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bidaf_stage_duration_seconds",
		Help:    "Time spent in each stage of the BiDAF forward pass",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"stage", "device"})

	forwardErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bidaf_forward_errors_total",
		Help: "Forward passes rejected before computation",
	}, []string{"kind"})
)
