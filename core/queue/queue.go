package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/workbridge-io/workbridge/core/infra/logging"
	"github.com/workbridge-io/workbridge/core/infra/metrics"
)

const (
	// priorityWeight separates priority bands in the ready set score.
	// Within a band the enqueue sequence number keeps FIFO order, so
	// ordering is deterministic regardless of wall clock.
	priorityWeight = 1e9

	defaultMaxRetries = 3
	defaultLease      = 30 * time.Second

	deadLetterCap = 1000
)

// Job is one unit of queued work. A job lives in exactly one of the
// ready set, delayed set, in-flight set, or dead-letter store.
type Job struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	OrgID          string         `json:"org_id"`
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`
	TriggerSource  string         `json:"trigger_source,omitempty"`
	Priority       int            `json:"priority"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	ScheduledFor   *time.Time     `json:"scheduled_for,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// EnqueueOptions carries the optional knobs of Enqueue.
type EnqueueOptions struct {
	Priority     int
	ScheduledFor *time.Time
	MaxRetries   int
}

// Queue is a durable priority job queue on Redis. Ready jobs are ordered
// by (priority desc, enqueue sequence asc); the atomic ready-to-inflight
// move is the sole ownership mechanism.
type Queue struct {
	client     *redis.Client
	name       string
	lease      time.Duration
	maxRetries int
	metrics    metrics.Metrics
}

type Option func(*Queue)

// WithLease sets how long a dequeued job may stay in flight before a
// reclaim sweep treats its worker as crashed.
func WithLease(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// WithMaxRetries sets the default retry budget for new jobs.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(q *Queue) {
		if m != nil {
			q.metrics = m
		}
	}
}

func New(client *redis.Client, name string, opts ...Option) *Queue {
	q := &Queue{
		client:     client,
		name:       name,
		lease:      defaultLease,
		maxRetries: defaultMaxRetries,
		metrics:    metrics.Noop{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stores a job and places it in the ready set, or in the delayed
// set when ScheduledFor is in the future. Returns the job ID.
func (q *Queue) Enqueue(ctx context.Context, workflowID, orgID string, triggerPayload map[string]any, triggerSource string, opts EnqueueOptions) (string, error) {
	if workflowID == "" {
		return "", fmt.Errorf("workflow id required")
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.maxRetries
	}
	job := &Job{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		OrgID:          orgID,
		TriggerPayload: triggerPayload,
		TriggerSource:  triggerSource,
		Priority:       opts.Priority,
		MaxRetries:     maxRetries,
		ScheduledFor:   opts.ScheduledFor,
		CreatedAt:      time.Now().UTC(),
	}

	now := time.Now()
	if job.ScheduledFor != nil && job.ScheduledFor.After(now) {
		if err := q.storeJob(ctx, job, q.delayedKey(), float64(job.ScheduledFor.UnixMilli())); err != nil {
			return "", err
		}
	} else {
		score, err := q.readyScore(ctx, job.Priority)
		if err != nil {
			return "", err
		}
		if err := q.storeJob(ctx, job, q.readyKey(), score); err != nil {
			return "", err
		}
	}

	q.metrics.IncJobsEnqueued(triggerSource)
	logging.Debug("QUEUE", "job enqueued", "queue", q.name, "job_id", job.ID, "workflow_id", workflowID, "priority", job.Priority)
	return job.ID, nil
}

// Dequeue promotes due delayed jobs and then atomically moves the
// best-ranked ready job into the in-flight set. Returns (nil, nil) when
// nothing is ready.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, err
	}

	var claimed string
	for attempt := 0; attempt < 5; attempt++ {
		err := q.client.Watch(ctx, func(tx *redis.Tx) error {
			ids, err := tx.ZRange(ctx, q.readyKey(), 0, 0).Result()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				claimed = ""
				return nil
			}
			id := ids[0]

			pipe := tx.TxPipeline()
			pipe.ZRem(ctx, q.readyKey(), id)
			pipe.ZAdd(ctx, q.inflightKey(), redis.Z{
				Score:  float64(time.Now().Add(q.lease).UnixMilli()),
				Member: id,
			})
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			claimed = id
			return nil
		}, q.readyKey())
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	if claimed == "" {
		return nil, nil
	}

	job, err := q.getJob(ctx, claimed)
	if err == redis.Nil {
		// Doc vanished under the index entry; drop the orphan.
		q.client.ZRem(ctx, q.inflightKey(), claimed)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Complete acknowledges a finished job and drops its state. Idempotent.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), jobID)
	pipe.Del(ctx, q.jobKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	q.metrics.IncJobsCompleted("success")
	return nil
}

// Fail records a failed attempt. While the retry budget lasts, the job
// is re-inserted into the delayed set with exponential backoff; once
// exhausted it is moved to the dead-letter store.
func (q *Queue) Fail(ctx context.Context, jobID string, cause string) error {
	job, err := q.getJob(ctx, jobID)
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	job.RetryCount++
	job.LastError = cause

	if job.RetryCount < job.MaxRetries {
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		retryAt := time.Now().Add(backoff)
		job.ScheduledFor = &retryAt

		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		pipe := q.client.TxPipeline()
		pipe.Set(ctx, q.jobKey(jobID), payload, 0)
		pipe.ZRem(ctx, q.inflightKey(), jobID)
		pipe.ZRem(ctx, q.readyKey(), jobID)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(retryAt.UnixMilli()), Member: jobID})
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		q.metrics.IncJobsRetried()
		logging.Warn("QUEUE", "job retry scheduled", "queue", q.name, "job_id", jobID,
			"retry_count", job.RetryCount, "backoff", backoff.String(), "error", cause)
		return nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(jobID), payload, 0)
	pipe.ZRem(ctx, q.inflightKey(), jobID)
	pipe.ZRem(ctx, q.readyKey(), jobID)
	pipe.ZRem(ctx, q.delayedKey(), jobID)
	pipe.ZAdd(ctx, q.deadKey(), redis.Z{Score: float64(time.Now().UnixMilli()), Member: jobID})
	pipe.ZRemRangeByRank(ctx, q.deadKey(), 0, -(deadLetterCap + 1))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	q.metrics.IncJobsCompleted("failed")
	q.metrics.IncJobsDeadLettered()
	logging.Error("QUEUE", "job dead-lettered", "queue", q.name, "job_id", jobID,
		"retry_count", job.RetryCount, "error", cause)
	return nil
}

// ReclaimExpired re-routes jobs whose in-flight lease has lapsed. A
// lapsed lease counts as a failed attempt, so a repeatedly crashing job
// still converges on the dead-letter store.
func (q *Queue) ReclaimExpired(ctx context.Context) (int, error) {
	now := float64(time.Now().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, id := range ids {
		ok, err := q.reclaimJob(ctx, id)
		if err != nil {
			return reclaimed, err
		}
		if ok {
			reclaimed++
		}
	}
	if reclaimed > 0 {
		logging.Warn("QUEUE", "reclaimed expired jobs", "queue", q.name, "count", reclaimed)
	}
	return reclaimed, nil
}

// reclaimJob takes ownership of one expired lease. Every worker runs the
// reclaim sweep, so the ZRem return value arbitrates between concurrent
// reclaimers: only the caller that removes the in-flight entry counts the
// attempt, keeping one expiry to one retry.
func (q *Queue) reclaimJob(ctx context.Context, id string) (bool, error) {
	removed, err := q.client.ZRem(ctx, q.inflightKey(), id).Result()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}
	if err := q.Fail(ctx, id, "lease expired"); err != nil {
		return true, err
	}
	return true, nil
}

// DeadLetters returns the most recent dead-lettered jobs.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.client.ZRevRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.getJob(ctx, id)
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Depth returns the current ready-set size.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.readyKey()).Result()
}

// promoteDelayed moves every due delayed job into the ready set.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		job, err := q.getJob(ctx, id)
		if err == redis.Nil {
			q.client.ZRem(ctx, q.delayedKey(), id)
			continue
		}
		if err != nil {
			return err
		}
		score, err := q.readyScore(ctx, job.Priority)
		if err != nil {
			return err
		}
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: score, Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// readyScore computes the ready-set ordering key. Higher priority sorts
// lower; within a priority band the sequence counter keeps FIFO order.
func (q *Queue) readyScore(ctx context.Context, priority int) (float64, error) {
	seq, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return 0, err
	}
	return -float64(priority)*priorityWeight + float64(seq), nil
}

func (q *Queue) storeJob(ctx context.Context, job *Job, indexKey string, score float64) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(job.ID), payload, 0)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: score, Member: job.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Queue) getJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) readyKey() string    { return "q:" + q.name + ":ready" }
func (q *Queue) delayedKey() string  { return "q:" + q.name + ":delayed" }
func (q *Queue) inflightKey() string { return "q:" + q.name + ":inflight" }
func (q *Queue) deadKey() string     { return "q:" + q.name + ":dead" }
func (q *Queue) seqKey() string      { return "q:" + q.name + ":seq" }

func (q *Queue) jobKey(id string) string { return "q:" + q.name + ":job:" + id }
