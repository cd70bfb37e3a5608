package breaker

import "github.com/prometheus/client_golang/prometheus"

// Collectors for the circuit breakers of spec.md §4.8, matching the
// teacher's package-level collector-var-block idiom (metrics/metrics.go).
var (
	breakerOpenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breaker_calls_rejected_total",
		Help: "Cumulative number of calls rejected because the breaker was open, by breaker name.",
	}, []string{"breaker"})

	breakerCallErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breaker_call_errors_total",
		Help: "Cumulative number of calls that completed with an error while the breaker was closed, by breaker name.",
	}, []string{"breaker"})
)

// Collectors returns every collector defined by this package, for the
// caller to prometheus.MustRegister at process start.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{breakerOpenTotal, breakerCallErrorsTotal}
}
