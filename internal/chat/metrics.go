package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "personad",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat requests by outcome",
		},
		[]string{"outcome"},
	)

	chatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "personad",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "End-to-end chat handling time, including persona loads",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"outcome"},
	)

	generatedTokens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "personad",
			Subsystem: "chat",
			Name:      "generated_tokens_total",
			Help:      "Completion tokens produced",
		},
	)
)

func init() {
	prometheus.MustRegister(chatRequests, chatDuration, generatedTokens)
}
