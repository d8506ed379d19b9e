package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ipopulse",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of pipeline API endpoints",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipopulse",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by pipeline API endpoint and kind",
		},
		[]string{"endpoint", "kind"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors)
	})
}

// Observe returns a func that records the endpoint latency when called.
func Observe(endpoint string) func() {
	start := time.Now()
	return func() {
		APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
