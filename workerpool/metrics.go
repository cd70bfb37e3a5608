package workerpool

import "github.com/prometheus/client_golang/prometheus"

// Collectors for the worker pools of spec.md §4.3, matching the teacher's
// "package-level var block of collectors, exposed as Collectors() for the
// caller to MustRegister" idiom (metrics/metrics.go).
var (
	jobsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workerpool_jobs_submitted_total",
		Help: "Cumulative number of jobs submitted to a pool, by pool and role.",
	}, []string{"pool", "role"})

	jobsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workerpool_jobs_failed_total",
		Help: "Cumulative number of jobs that returned an error, by pool and role.",
	}, []string{"pool", "role"})

	jobDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "workerpool_job_duration_seconds",
		Help: "Job execution duration in seconds, by pool and role.",
	}, []string{"pool", "role"})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workerpool_queue_depth",
		Help: "Number of jobs currently queued, by pool and role.",
	}, []string{"pool", "role"})

	workerRespawnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workerpool_worker_respawns_total",
		Help: "Cumulative number of times a worker crashed after MAX_WORKER_ERRORS and was respawned.",
	}, []string{"pool", "role"})
)

// Collectors returns every collector defined by this package, for the
// caller to prometheus.MustRegister at process start.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		jobsSubmittedTotal, jobsFailedTotal, jobDurationSeconds, queueDepth, workerRespawnsTotal,
	}
}
