package forge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is a container of metrics for an Executor.
type metrics struct {
	tasksTotal *prometheus.CounterVec
	runsTotal  *prometheus.CounterVec
	runSeconds prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		tasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_executor_tasks_total",
			Help: "Total number of tasks by state, counting transitions into state",
		}, []string{"state"}),
		runsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_executor_runs_total",
			Help: "Total number of runs by outcome",
		}, []string{"outcome"}),

		runSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "taskforge_executor_run_seconds",
			Help: "Number of seconds a run took from start until every task was terminal",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}
