package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/workbridge-io/workbridge/core/infra/redisutil"
	"github.com/workbridge-io/workbridge/core/infra/secrets"
)

// RedisStore persists definitions, executions, and step logs in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed workflow store from a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client, sharing the
// connection pool with other stores.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// SaveDefinition upserts a workflow definition and updates indexes.
func (s *RedisStore) SaveDefinition(ctx context.Context, def *Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("definition id required")
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, definitionKey(def.ID), payload, 0)
	if def.OrgID != "" {
		pipe.ZAdd(ctx, definitionOrgIndexKey(def.OrgID), redis.Z{Score: float64(now.Unix()), Member: def.ID})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetDefinition returns a workflow definition by ID.
func (s *RedisStore) GetDefinition(ctx context.Context, id string) (*Definition, error) {
	if id == "" {
		return nil, fmt.Errorf("id required")
	}
	data, err := s.client.Get(ctx, definitionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return &def, nil
}

// CreateExecution persists a new execution and indexes it.
func (s *RedisStore) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec == nil || exec.ID == "" || exec.WorkflowID == "" {
		return fmt.Errorf("execution id and workflow id required")
	}
	now := time.Now().UTC()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = now
	}
	exec.UpdatedAt = now
	if exec.Status == "" {
		exec.Status = ExecutionStatusPending
	}
	return s.writeExecution(ctx, exec, "")
}

// UpdateExecution overwrites an execution document and maintains the
// status indexes. Terminal executions are immutable.
func (s *RedisStore) UpdateExecution(ctx context.Context, exec *Execution) error {
	if exec == nil || exec.ID == "" || exec.WorkflowID == "" {
		return fmt.Errorf("execution id and workflow id required")
	}
	prevStatus := ExecutionStatus("")
	if data, err := s.client.Get(ctx, executionKey(exec.ID)).Bytes(); err == nil {
		var prev Execution
		if err := json.Unmarshal(data, &prev); err == nil {
			prevStatus = prev.Status
		}
	}
	if prevStatus.IsTerminal() && prevStatus != exec.Status {
		return fmt.Errorf("execution %s is terminal (%s)", exec.ID, prevStatus)
	}
	exec.UpdatedAt = time.Now().UTC()
	return s.writeExecution(ctx, exec, prevStatus)
}

func (s *RedisStore) writeExecution(ctx context.Context, exec *Execution, prevStatus ExecutionStatus) error {
	payload, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	now := exec.UpdatedAt
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, executionKey(exec.ID), payload, 0)
	pipe.ZAdd(ctx, executionIndexKey(exec.WorkflowID), redis.Z{Score: float64(now.Unix()), Member: exec.ID})
	pipe.ZAdd(ctx, executionStatusIndexKey(exec.Status), redis.Z{Score: float64(now.Unix()), Member: exec.ID})
	if prevStatus != "" && prevStatus != exec.Status {
		pipe.ZRem(ctx, executionStatusIndexKey(prevStatus), exec.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetExecution fetches an execution by ID.
func (s *RedisStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	if id == "" {
		return nil, fmt.Errorf("execution id required")
	}
	data, err := s.client.Get(ctx, executionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var exec Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &exec, nil
}

// ListExecutionsByWorkflow returns recent executions for a workflow.
func (s *RedisStore) ListExecutionsByWorkflow(ctx context.Context, workflowID string, limit int64) ([]*Execution, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("workflow id required")
	}
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.ZRevRange(ctx, executionIndexKey(workflowID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Execution{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.Get(ctx, executionKey(id))
	}
	_, _ = pipe.Exec(ctx)

	out := make([]*Execution, 0, len(ids))
	for _, id := range ids {
		cmd := cmds[id]
		if cmd == nil {
			continue
		}
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var exec Execution
		if err := json.Unmarshal(data, &exec); err != nil {
			continue
		}
		out = append(out, &exec)
	}
	return out, nil
}

// PutStepLog upserts one step's audit record and indexes it by step
// number. Secret references in input/output are redacted before the
// record is written.
func (s *RedisStore) PutStepLog(ctx context.Context, log *StepLog) error {
	if log == nil || log.ExecutionID == "" || log.StepNumber < 1 {
		return fmt.Errorf("step log execution id and step number required")
	}
	stored := *log
	if redacted, ok := secrets.Redact(log.Input).(map[string]any); ok {
		stored.Input = redacted
	}
	if redacted, ok := secrets.Redact(log.Output).(map[string]any); ok {
		stored.Output = redacted
	}
	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal step log: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, stepLogKey(log.ExecutionID, log.StepNumber), payload, 0)
	pipe.ZAdd(ctx, stepLogIndexKey(log.ExecutionID), redis.Z{Score: float64(log.StepNumber), Member: log.StepNumber})
	_, err = pipe.Exec(ctx)
	return err
}

// ListStepLogs returns an execution's step logs in ascending step order.
func (s *RedisStore) ListStepLogs(ctx context.Context, executionID string) ([]StepLog, error) {
	if executionID == "" {
		return nil, fmt.Errorf("execution id required")
	}
	members, err := s.client.ZRange(ctx, stepLogIndexKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []StepLog{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(members))
	for i, member := range members {
		cmds[i] = pipe.Get(ctx, stepLogMemberKey(executionID, member))
	}
	_, _ = pipe.Exec(ctx)

	out := make([]StepLog, 0, len(members))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var log StepLog
		if err := json.Unmarshal(data, &log); err != nil {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func definitionKey(id string) string {
	return "wf:def:" + id
}

func definitionOrgIndexKey(orgID string) string {
	return "wf:def:org:" + orgID
}

func executionKey(id string) string {
	return "wf:exec:" + id
}

func executionIndexKey(workflowID string) string {
	return "wf:execs:" + workflowID
}

func executionStatusIndexKey(status ExecutionStatus) string {
	return "wf:execs:status:" + string(status)
}

func stepLogKey(executionID string, stepNumber int) string {
	return fmt.Sprintf("wf:exec:steps:%s:%d", executionID, stepNumber)
}

func stepLogMemberKey(executionID, member string) string {
	return "wf:exec:steps:" + executionID + ":" + member
}

func stepLogIndexKey(executionID string) string {
	return "wf:exec:stepidx:" + executionID
}
