package gqlquery

import "github.com/prometheus/client_golang/prometheus"

// Collectors for the query planner, matching the teacher's package-level
// collector-var-block idiom (metrics/metrics.go, also followed by
// workerpool/metrics.go and breaker/metrics.go).
var (
	queryDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "gqlquery_query_duration_seconds",
		Help: "Planner source-query duration in seconds, by source kind and age tier.",
	}, []string{"source", "age"})

	queryRowsReturned = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gqlquery_query_rows_returned",
		Help:    "Rows returned by a single planner source query, by source kind and age tier.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	}, []string{"source", "age"})

	queryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gqlquery_query_errors_total",
		Help: "Cumulative number of planner source queries that returned an error, by source kind and age tier.",
	}, []string{"source", "age"})
)

// Collectors returns every collector defined by this package, for the
// caller to prometheus.MustRegister at process start.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{queryDurationSeconds, queryRowsReturned, queryErrorsTotal}
}

func ageLabel(a age) string {
	if a == ageStable {
		return "stable"
	}
	return "new"
}

func sourceLabel(k sourceKind) string {
	if k == sourceItems {
		return "items"
	}
	return "txs"
}
