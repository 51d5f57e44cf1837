package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/workbridge-io/workbridge/core/infra/metrics"
	"github.com/workbridge-io/workbridge/core/mapping"
	"github.com/workbridge-io/workbridge/core/registry"
)

type staticCreds struct {
	creds map[string]*registry.Credentials
}

func (s *staticCreds) Resolve(ctx context.Context, orgID, connectionID string) (*registry.Credentials, error) {
	if c, ok := s.creds[connectionID]; ok {
		return c, nil
	}
	return nil, ErrConnectionNotFound
}

func newTestEngine(t *testing.T, reg *registry.Registry) (*Engine, *RedisStore) {
	t.Helper()
	store := newTestStore(t)
	executor := NewStepExecutor(reg, &staticCreds{creds: map[string]*registry.Credentials{
		"conn-1": {Type: "api_key", Data: map[string]any{"key": "k"}},
	}}, mapping.NewEngine(), store, metrics.Noop{})
	return NewEngine(store, executor, metrics.Noop{}), store
}

func echoHandler() registry.Handler {
	return registry.HandlerFunc(func(ctx context.Context, input map[string]any, creds *registry.Credentials, call registry.CallContext) (map[string]any, error) {
		out := map[string]any{"step": call.StepID}
		for k, v := range input {
			out[k] = v
		}
		return out, nil
	})
}

func failingHandler(msg string) registry.Handler {
	return registry.HandlerFunc(func(ctx context.Context, input map[string]any, creds *registry.Credentials, call registry.CallContext) (map[string]any, error) {
		return nil, &registry.ActionError{Code: "UPSTREAM_DOWN", Message: msg}
	})
}

func TestExecuteWorkflowAllStepsSucceed(t *testing.T) {
	reg := registry.New()
	reg.Register("svc", "echo", echoHandler())

	engine, store := newTestEngine(t, reg)
	ctx := context.Background()

	def := &Definition{
		ID:      "wf-1",
		OrgID:   "org-1",
		Version: "1.0",
		Trigger: &Trigger{Integration: "svc", TriggerID: "start"},
		Steps: []Step{
			{ID: "s1", Integration: "svc", ActionID: "echo", Input: InputSpec{StaticValues: map[string]any{"a": 1}}},
			{ID: "s2", Integration: "svc", ActionID: "echo", Input: InputSpec{StaticValues: map[string]any{"b": 2}}},
			{ID: "s3", Integration: "svc", ActionID: "echo", Input: InputSpec{StaticValues: map[string]any{"c": 3}}},
		},
	}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	exec, err := engine.ExecuteWorkflow(ctx, "wf-1", "org-1", map[string]any{"event": "created"}, "webhook")
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if exec.Status != ExecutionStatusSuccess {
		t.Fatalf("expected success, got %s (%+v)", exec.Status, exec.Error)
	}
	if exec.FinishedAt == nil {
		t.Fatalf("expected finished timestamp")
	}
	if exec.Output["step"] != "s3" {
		t.Fatalf("expected output from final step, got %v", exec.Output)
	}

	logs, err := store.ListStepLogs(ctx, exec.ID)
	if err != nil {
		t.Fatalf("ListStepLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 step logs, got %d", len(logs))
	}
	for i, log := range logs {
		if log.StepNumber != i+1 {
			t.Fatalf("step logs out of order: %+v", logs)
		}
		if log.Status != StepStatusSuccess {
			t.Fatalf("expected success step log, got %s", log.Status)
		}
	}
}

func TestExecuteWorkflowContinueOnError(t *testing.T) {
	reg := registry.New()
	reg.Register("svc", "echo", echoHandler())
	reg.Register("svc", "boom", failingHandler("upstream down"))

	engine, store := newTestEngine(t, reg)
	ctx := context.Background()

	def := &Definition{
		ID:      "wf-1",
		Version: "1.0",
		Trigger: &Trigger{Integration: "svc", TriggerID: "start"},
		Steps: []Step{
			{ID: "s1", Integration: "svc", ActionID: "echo", Input: InputSpec{
				Mappings: []mapping.FieldMapping{{Source: "$.event", Target: "$.event"}},
			}},
			{ID: "s2", Integration: "svc", ActionID: "boom", ContinueOnError: true},
			{ID: "s3", Integration: "svc", ActionID: "echo", Input: InputSpec{
				Mappings: []mapping.FieldMapping{{Source: "$", Target: "$.seen"}},
			}},
		},
	}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	exec, err := engine.ExecuteWorkflow(ctx, "wf-1", "org-1", map[string]any{"event": "created"}, "webhook")
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if exec.Status != ExecutionStatusSuccess {
		t.Fatalf("expected success, got %s (%+v)", exec.Status, exec.Error)
	}

	logs, err := store.ListStepLogs(ctx, exec.ID)
	if err != nil {
		t.Fatalf("ListStepLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 step logs, got %d", len(logs))
	}
	if logs[1].Status != StepStatusFailed {
		t.Fatalf("expected step 2 failed, got %s", logs[1].Status)
	}
	// Step 2's failure must not mutate the data document: step 3 sees
	// step 1's output.
	seen, ok := logs[2].Input["seen"].(map[string]any)
	if !ok {
		t.Fatalf("expected step 3 input to carry the document, got %+v", logs[2].Input)
	}
	if seen["step"] != "s1" || seen["event"] != "created" {
		t.Fatalf("step 3 saw wrong document: %+v", seen)
	}
}

func TestExecuteWorkflowAbortsOnFailure(t *testing.T) {
	reg := registry.New()
	reg.Register("svc", "echo", echoHandler())
	reg.Register("svc", "boom", failingHandler("upstream down"))

	engine, store := newTestEngine(t, reg)
	ctx := context.Background()

	def := &Definition{
		ID:      "wf-1",
		Version: "1.0",
		Trigger: &Trigger{Integration: "svc", TriggerID: "start"},
		Steps: []Step{
			{ID: "s1", Integration: "svc", ActionID: "echo"},
			{ID: "s2", Name: "notify", Integration: "svc", ActionID: "boom"},
			{ID: "s3", Integration: "svc", ActionID: "echo"},
		},
	}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	exec, err := engine.ExecuteWorkflow(ctx, "wf-1", "org-1", nil, "manual")
	if err == nil {
		t.Fatalf("expected error")
	}
	if exec.Status != ExecutionStatusFailed {
		t.Fatalf("expected failed, got %s", exec.Status)
	}
	if exec.Error == nil || exec.Error.StepNumber != 2 || exec.Error.StepName != "notify" {
		t.Fatalf("unexpected execution error: %+v", exec.Error)
	}
	if exec.Error.Code != "UPSTREAM_DOWN" {
		t.Fatalf("expected action error code to surface, got %s", exec.Error.Code)
	}

	// Step 3 never ran; partial logs remain observable.
	logs, _ := store.ListStepLogs(ctx, exec.ID)
	if len(logs) != 2 {
		t.Fatalf("expected 2 step logs, got %d", len(logs))
	}
}

func TestExecuteWorkflowDefinitionNotFound(t *testing.T) {
	engine, _ := newTestEngine(t, registry.New())

	exec, err := engine.ExecuteWorkflow(context.Background(), "missing", "org-1", nil, "manual")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
	if exec.Status != ExecutionStatusFailed || exec.Error.Code != CodeWorkflowNotFound {
		t.Fatalf("unexpected execution: %+v", exec)
	}
}

func TestExecuteStepPanicRecovered(t *testing.T) {
	reg := registry.New()
	reg.Register("svc", "panic", registry.HandlerFunc(func(ctx context.Context, input map[string]any, creds *registry.Credentials, call registry.CallContext) (map[string]any, error) {
		panic("boom")
	}))

	engine, store := newTestEngine(t, reg)
	ctx := context.Background()

	def := &Definition{
		ID:      "wf-1",
		Version: "1.0",
		Trigger: &Trigger{Integration: "svc", TriggerID: "start"},
		Steps:   []Step{{ID: "s1", Integration: "svc", ActionID: "panic"}},
	}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	exec, err := engine.ExecuteWorkflow(ctx, "wf-1", "org-1", nil, "manual")
	if err == nil {
		t.Fatalf("expected error")
	}
	if exec.Error == nil || exec.Error.Code != CodeExecutionError {
		t.Fatalf("expected EXECUTION_ERROR, got %+v", exec.Error)
	}
}

func TestExecuteWorkflowTimeout(t *testing.T) {
	reg := registry.New()
	reg.Register("svc", "hang", registry.HandlerFunc(func(ctx context.Context, input map[string]any, creds *registry.Credentials, call registry.CallContext) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	engine, store := newTestEngine(t, reg)
	ctx := context.Background()

	def := &Definition{
		ID:       "wf-1",
		Version:  "1.0",
		Trigger:  &Trigger{Integration: "svc", TriggerID: "start"},
		Settings: &Settings{TimeoutSec: 1},
		Steps:    []Step{{ID: "s1", Name: "slow call", Integration: "svc", ActionID: "hang"}},
	}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	exec, err := engine.ExecuteWorkflow(ctx, "wf-1", "org-1", nil, "manual")
	if err == nil {
		t.Fatalf("expected error")
	}
	if exec.Status != ExecutionStatusFailed {
		t.Fatalf("expected failed, got %s", exec.Status)
	}
	if exec.Error == nil || exec.Error.Code != CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %+v", exec.Error)
	}
	if exec.Error.StepNumber != 1 || exec.Error.StepName != "slow call" {
		t.Fatalf("unexpected aborting step: %+v", exec.Error)
	}
}

func TestExecuteStepUnknownActionWinsOverBadMapping(t *testing.T) {
	// Handler resolution happens before input mapping, so a step that is
	// broken both ways reports the missing action.
	engine, store := newTestEngine(t, registry.New())
	ctx := context.Background()

	def := &Definition{
		ID:      "wf-1",
		Version: "1.0",
		Trigger: &Trigger{Integration: "svc", TriggerID: "start"},
		Steps: []Step{{
			ID: "s1", Integration: "svc", ActionID: "missing",
			Input: InputSpec{Mappings: []mapping.FieldMapping{{Source: "not-a-path", Target: "$.x"}}},
		}},
	}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	exec, _ := engine.ExecuteWorkflow(ctx, "wf-1", "org-1", nil, "manual")
	if exec.Status != ExecutionStatusFailed {
		t.Fatalf("expected failed, got %s", exec.Status)
	}
	if exec.Error == nil || exec.Error.Code != CodeActionNotFound {
		t.Fatalf("expected ACTION_NOT_FOUND, got %+v", exec.Error)
	}
}

func TestExecuteStepMissingConnection(t *testing.T) {
	reg := registry.New()
	reg.Register("svc", "echo", echoHandler())

	engine, store := newTestEngine(t, reg)
	ctx := context.Background()

	def := &Definition{
		ID:      "wf-1",
		Version: "1.0",
		Trigger: &Trigger{Integration: "svc", TriggerID: "start"},
		Steps:   []Step{{ID: "s1", Integration: "svc", ActionID: "echo", ConnectionID: "unknown"}},
	}
	if err := store.SaveDefinition(ctx, def); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	exec, _ := engine.ExecuteWorkflow(ctx, "wf-1", "org-1", nil, "manual")
	if exec.Status != ExecutionStatusFailed || exec.Error.Code != CodeConnectionNotFound {
		t.Fatalf("expected CONNECTION_NOT_FOUND, got %+v", exec.Error)
	}
}
