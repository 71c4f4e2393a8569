package memcached

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	methodNameLabel   = "method_name"
	isSuccessfulLabel = "is_successful"
)

var (
	methodDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "",
		Name:      "memcached_client_method_duration_seconds",
		Help:      "counts the execution time of successful and failed client methods",
		Buckets: []float64{
			0.0005, 0.001, 0.005, 0.007, 0.015, 0.05, 0.1, 0.2, 0.5, 1,
		},
	}, []string{
		methodNameLabel,
		isSuccessfulLabel,
	})

	deadNodesCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "",
		Name:      "memcached_client_dead_nodes",
		Help:      "number of nodes currently removed from the ring as dead",
	})
)

// Collectors returns the library metrics so the application can register
// them with its own prometheus registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{methodDurationSeconds, deadNodesCount}
}

// observeMethodDurationSeconds is observing the duration of a method.
func observeMethodDurationSeconds(methodName string, duration float64, isSuccessful bool) {
	flag := "0"
	if isSuccessful {
		flag = "1"
	}

	methodDurationSeconds.
		WithLabelValues(methodName, flag).
		Observe(duration)
}

func setDeadNodesCount(n int) {
	deadNodesCount.Set(float64(n))
}
