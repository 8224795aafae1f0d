package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"personad/internal/engine"
)

var (
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "personad",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Persona lookups by result (hit or miss)",
		},
		[]string{"result"},
	)

	cacheLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "personad",
			Subsystem: "cache",
			Name:      "loads_total",
			Help:      "Persona model loads by outcome",
		},
		[]string{"outcome"},
	)

	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "personad",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Replaced persona models handed back to the engine",
		},
	)

	pipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "personad",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of adapter-merge pipeline stages",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(cacheRequests, cacheLoads, cacheEvictions, pipelineStageDuration)
}

func observeStage(stage engine.Stage, took time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	pipelineStageDuration.WithLabelValues(string(stage), outcome).Observe(took.Seconds())
}
