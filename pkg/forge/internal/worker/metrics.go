package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a container of metrics for worker pools.
type Metrics struct {
	pools       prometheus.Gauge
	busyThreads *prometheus.GaugeVec
	tasksTotal  *prometheus.CounterVec

	taskQueueSeconds *prometheus.HistogramVec
	taskExecSeconds  *prometheus.HistogramVec
}

// NewMetrics creates worker metrics registered to reg. reg may be nil, in
// which case metrics are collected but never exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		pools: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "taskforge_worker_pools",
			Help: "Number of running worker pools",
		}),
		busyThreads: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskforge_worker_busy_threads",
			Help: "Number of worker threads currently running a task, by tag",
		}, []string{"tag"}),
		tasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "taskforge_worker_tasks_total",
			Help: "Total number of tasks run by worker threads, by tag and outcome",
		}, []string{"tag", "outcome"}),

		taskQueueSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "taskforge_worker_task_queue_seconds",
			Help: "Number of seconds a task sat in a pool queue before being picked up by a worker thread",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}, []string{"tag"}),
		taskExecSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "taskforge_worker_task_exec_seconds",
			Help: "Number of seconds a task took to run on a worker thread",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}, []string{"tag"}),
	}
}
