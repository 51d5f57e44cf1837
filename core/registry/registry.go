package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrActionNotFound is returned when no handler is registered for an
// (integration, action) pair.
var ErrActionNotFound = errors.New("action not found")

// Credentials carries resolved connection material for one integration call.
type Credentials struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// CallContext identifies the execution a handler runs inside.
type CallContext struct {
	ExecutionID string
	WorkflowID  string
	OrgID       string
	StepID      string
	StepNumber  int
}

// Handler executes one integration action.
type Handler interface {
	Execute(ctx context.Context, input map[string]any, creds *Credentials, call CallContext) (map[string]any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, input map[string]any, creds *Credentials, call CallContext) (map[string]any, error)

func (f HandlerFunc) Execute(ctx context.Context, input map[string]any, creds *Credentials, call CallContext) (map[string]any, error) {
	return f(ctx, input, creds, call)
}

// ActionError is an integration-reported failure with a stable code.
type ActionError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type capabilityKey struct {
	integration string
	id          string
}

// Registry maps (integration slug, action id) to handlers. It is
// populated by explicit registration at process start; lookups after
// that are read-only and safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	actions  map[capabilityKey]Handler
	triggers map[capabilityKey]struct{}
}

// New returns an empty capability registry.
func New() *Registry {
	return &Registry{
		actions:  make(map[capabilityKey]Handler),
		triggers: make(map[capabilityKey]struct{}),
	}
}

// Register binds a handler to an (integration, action) pair, replacing
// any previous binding.
func (r *Registry) Register(integration, actionID string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[capabilityKey{integration, actionID}] = h
}

// RegisterTrigger declares that an integration exposes a trigger; the
// validator resolves trigger descriptors against these entries.
func (r *Registry) RegisterTrigger(integration, triggerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[capabilityKey{integration, triggerID}] = struct{}{}
}

// Resolve returns the handler for an (integration, action) pair.
func (r *Registry) Resolve(integration, actionID string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.actions[capabilityKey{integration, actionID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrActionNotFound, integration, actionID)
	}
	return h, nil
}

// HasIntegration reports whether any action or trigger is registered
// under the integration slug.
func (r *Registry) HasIntegration(integration string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range r.actions {
		if key.integration == integration {
			return true
		}
	}
	for key := range r.triggers {
		if key.integration == integration {
			return true
		}
	}
	return false
}

// HasAction reports whether the (integration, action) pair resolves.
func (r *Registry) HasAction(integration, actionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[capabilityKey{integration, actionID}]
	return ok
}

// HasTrigger reports whether the (integration, trigger) pair resolves.
func (r *Registry) HasTrigger(integration, triggerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.triggers[capabilityKey{integration, triggerID}]
	return ok
}
