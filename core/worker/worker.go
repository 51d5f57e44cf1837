package worker

import (
	"context"
	"sync"
	"time"

	"github.com/workbridge-io/workbridge/core/infra/logging"
	"github.com/workbridge-io/workbridge/core/infra/metrics"
	"github.com/workbridge-io/workbridge/core/queue"
	"github.com/workbridge-io/workbridge/core/workflow"
)

// Runner executes one workflow run. Satisfied by *workflow.Engine.
type Runner interface {
	ExecuteWorkflow(ctx context.Context, workflowID, orgID string, triggerPayload map[string]any, triggerSource string) (*workflow.Execution, error)
}

// Config tunes one worker process.
type Config struct {
	Concurrency     int
	PollInterval    time.Duration
	ReclaimInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = 10 * time.Second
	}
	return c
}

// Worker polls the queue and runs jobs through the workflow engine,
// bounding in-process concurrency with a semaphore. Workers share no
// state with each other; the queue is the sole coordination point.
type Worker struct {
	queue   *queue.Queue
	runner  Runner
	metrics metrics.Metrics
	cfg     Config

	sem chan struct{}
	wg  sync.WaitGroup
}

func New(q *queue.Queue, runner Runner, m metrics.Metrics, cfg Config) *Worker {
	if m == nil {
		m = metrics.Noop{}
	}
	cfg = cfg.withDefaults()
	return &Worker{
		queue:   q,
		runner:  runner,
		metrics: m,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.Concurrency),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight jobs to
// finish. There is no upper bound on that wait: a job, once claimed,
// runs to completion or failure.
func (w *Worker) Run(ctx context.Context) error {
	logging.Info("WORKER", "worker started",
		"concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval.String())

	reclaimDone := make(chan struct{})
	go w.reclaimLoop(ctx, reclaimDone)

	for {
		if err := ctx.Err(); err != nil {
			break
		}

		// Respect the concurrency cap before touching the queue so a
		// saturated worker does not claim jobs it cannot start.
		acquired := false
		select {
		case w.sem <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			if acquired {
				<-w.sem
			}
			break
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			<-w.sem
			if ctx.Err() != nil {
				break
			}
			logging.Error("WORKER", "dequeue failed", "error", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			<-w.sem
			w.sleep(ctx)
			continue
		}

		w.wg.Add(1)
		go func(job *queue.Job) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.process(job)
		}(job)
	}

	<-reclaimDone
	logging.Info("WORKER", "draining in-flight jobs")
	w.wg.Wait()
	logging.Info("WORKER", "worker stopped")
	return nil
}

// process runs one job to completion. The job context is deliberately
// detached from the poll context: shutdown stops polling, not running
// jobs.
func (w *Worker) process(job *queue.Job) {
	ctx := context.Background()
	log := logging.NewScope("WORKER", "job_id", job.ID, "workflow_id", job.WorkflowID)
	log.Info("job started", "retry_count", job.RetryCount, "source", job.TriggerSource)

	exec, err := w.runner.ExecuteWorkflow(ctx, job.WorkflowID, job.OrgID, job.TriggerPayload, job.TriggerSource)
	if err != nil {
		msg := err.Error()
		if exec != nil && exec.Error != nil {
			msg = exec.Error.Message
		}
		if failErr := w.queue.Fail(ctx, job.ID, msg); failErr != nil {
			log.Error("failed to report job failure", "error", failErr)
		}
		log.Warn("job failed", "error", msg)
		return
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		log.Error("failed to ack job", "error", err)
		return
	}
	log.Info("job completed", "execution_id", exec.ID, "duration_ms", exec.DurationMs)
}

func (w *Worker) reclaimLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queue.ReclaimExpired(ctx); err != nil && ctx.Err() == nil {
				logging.Error("WORKER", "lease reclaim failed", "error", err)
			}
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.PollInterval):
	}
}
