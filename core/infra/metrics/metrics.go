package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures queue and execution pipeline counters.
type Metrics interface {
	IncJobsEnqueued(source string)
	IncJobsCompleted(status string)
	IncJobsRetried()
	IncJobsDeadLettered()
	IncStepsExecuted(integration, status string)
	ObserveExecutionDuration(workflow string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncJobsEnqueued(string)                    {}
func (Noop) IncJobsCompleted(string)                   {}
func (Noop) IncJobsRetried()                           {}
func (Noop) IncJobsDeadLettered()                      {}
func (Noop) IncStepsExecuted(string, string)           {}
func (Noop) ObserveExecutionDuration(string, float64)  {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	jobsEnqueued      *prometheus.CounterVec
	jobsCompleted     *prometheus.CounterVec
	jobsRetried       prometheus.Counter
	jobsDeadLettered  prometheus.Counter
	stepsExecuted     *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	once              sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Jobs enqueued by trigger source",
		}, []string{"source"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs finished by terminal status",
		}, []string{"status"}),
		jobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retried_total",
			Help:      "Job retry attempts scheduled",
		}),
		jobsDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dead_lettered_total",
			Help:      "Jobs moved to the dead-letter store",
		}),
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_executed_total",
			Help:      "Workflow steps executed by integration and status",
		}, []string{"integration", "status"}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Workflow execution duration by workflow id",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.jobsEnqueued,
			p.jobsCompleted,
			p.jobsRetried,
			p.jobsDeadLettered,
			p.stepsExecuted,
			p.executionDuration,
		)
	})
}

func (p *Prom) IncJobsEnqueued(source string) {
	p.jobsEnqueued.WithLabelValues(source).Inc()
}

func (p *Prom) IncJobsCompleted(status string) {
	p.jobsCompleted.WithLabelValues(status).Inc()
}

func (p *Prom) IncJobsRetried() {
	p.jobsRetried.Inc()
}

func (p *Prom) IncJobsDeadLettered() {
	p.jobsDeadLettered.Inc()
}

func (p *Prom) IncStepsExecuted(integration, status string) {
	p.stepsExecuted.WithLabelValues(integration, status).Inc()
}

func (p *Prom) ObserveExecutionDuration(workflow string, durationSeconds float64) {
	p.executionDuration.WithLabelValues(workflow).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
