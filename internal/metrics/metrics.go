// ============================================================================
// ringpool Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose Prometheus metrics for task submission,
// completion, cancellation, retry, and work-stealing activity, plus
// per-worker queue depth and idle-loop gauges.
//
// Metric Categories:
//
//   1. Task Counters - cumulative, monotonically increasing:
//      - ringpool_tasks_submitted_total
//      - ringpool_tasks_completed_total
//      - ringpool_tasks_cancelled_total
//      - ringpool_tasks_retried_total
//      - ringpool_tasks_stolen_total
//
//   2. Performance Metrics (Histogram):
//      - ringpool_task_latency_seconds: submit-to-Done latency distribution
//
//   3. Status Metrics (GaugeVec, labeled by worker):
//      - ringpool_queue_depth{worker}
//      - ringpool_worker_idle_loops{worker}
//
// Prometheus Query Examples:
//
//   # Throughput
//   rate(ringpool_tasks_completed_total[1m])
//
//   # 95th percentile latency
//   histogram_quantile(0.95, ringpool_task_latency_seconds_bucket)
//
//   # Retry rate relative to submissions
//   rate(ringpool_tasks_retried_total[5m]) / rate(ringpool_tasks_submitted_total[5m])
//
// HTTP Endpoint:
//   Exposed via /metrics, scraped by Prometheus. Default port: 9090.
//
// Grounded on the teacher's internal/metrics/metrics.go Collector: same
// counter/histogram/gauge split and StartServer helper, relabeled for the
// task-execution domain and widened from scalar Gauges to per-worker
// GaugeVecs for queue depth and idle loops.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for a ringpool Pool. It satisfies
// internal/pool.Recorder.
type Collector struct {
	tasksSubmitted prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksCancelled prometheus.Counter
	tasksRetried   prometheus.Counter
	tasksStolen    prometheus.Counter

	taskLatency prometheus.Histogram

	queueDepth *prometheus.GaugeVec
	idleLoops  *prometheus.GaugeVec
}

// NewCollector creates and registers a Collector against the default
// Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringpool_tasks_submitted_total",
			Help: "Total number of tasks submitted to the pool",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringpool_tasks_completed_total",
			Help: "Total number of tasks that reached Done",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringpool_tasks_cancelled_total",
			Help: "Total number of tasks that reached Cancelled",
		}),
		tasksRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringpool_tasks_retried_total",
			Help: "Total number of dependency-unfinished retries",
		}),
		tasksStolen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringpool_tasks_stolen_total",
			Help: "Total number of tasks moved between workers by work stealing",
		}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringpool_task_latency_seconds",
			Help:    "Submission-to-Done latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ringpool_queue_depth",
			Help: "Current number of queued tasks, per worker",
		}, []string{"worker"}),
		idleLoops: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ringpool_worker_idle_loops",
			Help: "Current consecutive idle-loop count, per worker",
		}, []string{"worker"}),
	}

	prometheus.MustRegister(c.tasksSubmitted)
	prometheus.MustRegister(c.tasksCompleted)
	prometheus.MustRegister(c.tasksCancelled)
	prometheus.MustRegister(c.tasksRetried)
	prometheus.MustRegister(c.tasksStolen)
	prometheus.MustRegister(c.taskLatency)
	prometheus.MustRegister(c.queueDepth)
	prometheus.MustRegister(c.idleLoops)

	return c
}

// RecordSubmitted records one task submission.
func (c *Collector) RecordSubmitted() {
	c.tasksSubmitted.Inc()
}

// RecordCompleted records a task reaching Done, observing its latency.
func (c *Collector) RecordCompleted(latency time.Duration) {
	c.tasksCompleted.Inc()
	c.taskLatency.Observe(latency.Seconds())
}

// RecordCancelled records a task reaching Cancelled.
func (c *Collector) RecordCancelled() {
	c.tasksCancelled.Inc()
}

// RecordRetried records a dependency-unfinished retry.
func (c *Collector) RecordRetried() {
	c.tasksRetried.Inc()
}

// RecordStolen records a successful work-stealing move.
func (c *Collector) RecordStolen() {
	c.tasksStolen.Inc()
}

// UpdateQueueDepth sets the current queue depth gauge for a worker.
func (c *Collector) UpdateQueueDepth(workerID int, depth int) {
	c.queueDepth.WithLabelValues(strconv.Itoa(workerID)).Set(float64(depth))
}

// UpdateIdleLoops sets the current idle-loop gauge for a worker.
func (c *Collector) UpdateIdleLoops(workerID int, idle uint64) {
	c.idleLoops.WithLabelValues(strconv.Itoa(workerID)).Set(float64(idle))
}

// StartServer starts the Prometheus metrics HTTP server on the given port,
// exposing /metrics. Blocks until the server stops or errors.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
