package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngageoint/scale/internal/scheduler/schedulerobjects"
)

const (
	metricsNamespace = "scale"
	metricsSubsystem = "scheduler"
)

var nodeStates = []NodeState{
	NodeDeprecated, NodeOffline, NodePaused, NodeSchedulerStopped, NodeDegraded, NodeInitialCleanup, NodeImagePull, NodeReady,
}

type Metrics struct {
	// Tasks launched, by task type.
	tasksLaunched *prometheus.CounterVec
	// New job executions scheduled.
	jobExesScheduled prometheus.Counter
	// Job executions failed by the scheduler itself, by error.
	jobExesFailed *prometheus.CounterVec
	// Offers discarded or expired unused.
	offersDeclined prometheus.Counter
	// Time taken by a scheduling pass.
	passTime prometheus.Histogram
	// Nodes, by state.
	nodes *prometheus.GaugeVec
	// Queued jobs seen by the latest pass.
	queuedJobs prometheus.Gauge
}

// NewMetrics creates the scheduler metrics and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	tasksLaunched := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tasks_launched_total",
			Help:      "Number of tasks launched.",
		},
		[]string{"type"},
	)
	jobExesScheduled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "job_exes_scheduled_total",
			Help:      "Number of new job executions scheduled.",
		},
	)
	jobExesFailed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "job_exes_failed_total",
			Help:      "Number of job executions failed because of lost nodes or timeouts.",
		},
		[]string{"error"},
	)
	offersDeclined := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "offers_declined_total",
			Help:      "Number of resource offers discarded or expired without being used.",
		},
	)
	passTime := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pass_seconds",
			Help:      "Time taken by a scheduling pass.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)
	nodes := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "nodes",
			Help:      "Number of nodes in each state.",
		},
		[]string{"state"},
	)
	queuedJobs := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queued_jobs",
			Help:      "Number of queued jobs considered by the latest scheduling pass.",
		},
	)
	registerer.MustRegister(tasksLaunched, jobExesScheduled, jobExesFailed, offersDeclined, passTime, nodes, queuedJobs)
	return &Metrics{
		tasksLaunched:    tasksLaunched,
		jobExesScheduled: jobExesScheduled,
		jobExesFailed:    jobExesFailed,
		offersDeclined:   offersDeclined,
		passTime:         passTime,
		nodes:            nodes,
		queuedJobs:       queuedJobs,
	}
}

func (m *Metrics) reportLaunched(tasks []*schedulerobjects.Task) {
	for _, task := range tasks {
		m.tasksLaunched.WithLabelValues(string(task.Type)).Inc()
	}
}

func (m *Metrics) reportScheduled(count int) {
	m.jobExesScheduled.Add(float64(count))
}

func (m *Metrics) reportFailed(errorName string, count int) {
	m.jobExesFailed.WithLabelValues(errorName).Add(float64(count))
}

func (m *Metrics) reportOfferDeclined() {
	m.offersDeclined.Inc()
}

func (m *Metrics) reportPass(seconds float64, queued int) {
	m.passTime.Observe(seconds)
	m.queuedJobs.Set(float64(queued))
}

func (m *Metrics) reportNodes(nodes []*Node) {
	counts := make(map[NodeState]int, len(nodeStates))
	for _, node := range nodes {
		counts[node.State]++
	}
	for _, state := range nodeStates {
		m.nodes.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
