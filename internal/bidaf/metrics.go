package bidaf

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	predictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bidaf_predict_duration_seconds",
		Help:    "Time spent in Predict, including cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	predictRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bidaf_predict_rows_total",
		Help: "Total number of (context, query) pairs scored",
	})

	predictErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bidaf_predict_errors_total",
		Help: "Total number of failed Predict calls",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bidaf_cache_hits_total",
		Help: "Total number of score cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bidaf_cache_misses_total",
		Help: "Total number of score cache misses",
	})
)
