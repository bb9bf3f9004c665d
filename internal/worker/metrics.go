package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmserverd",
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Inference requests dispatched to workers",
		},
		[]string{"model", "kind"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmserverd",
			Subsystem: "worker",
			Name:      "tokens_total",
			Help:      "Fragments streamed back to consumers",
		},
		[]string{"model"},
	)

	busyWorkers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llmserverd",
			Subsystem: "worker",
			Name:      "busy",
			Help:      "Workers currently running an engine call",
		},
		[]string{"model"},
	)

	initFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmserverd",
			Subsystem: "worker",
			Name:      "init_failures_total",
			Help:      "Worker initializations that failed at startup",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, tokensTotal, busyWorkers, initFailuresTotal)
}

// CountInitFailure records a worker that failed to initialize and was
// excluded from the registry.
func CountInitFailure(model string) {
	initFailuresTotal.WithLabelValues(model).Inc()
}
