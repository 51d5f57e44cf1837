package workflow

import (
	"context"
	"testing"

	"github.com/workbridge-io/workbridge/core/registry"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	noop := registry.HandlerFunc(func(ctx context.Context, input map[string]any, creds *registry.Credentials, call registry.CallContext) (map[string]any, error) {
		return map[string]any{}, nil
	})
	reg.Register("crm", "contact.create", noop)
	reg.Register("mail", "send", noop)
	reg.RegisterTrigger("crm", "contact.created")
	return reg
}

func validDefinition() *Definition {
	return &Definition{
		ID:      "wf-1",
		Version: "1.0",
		Trigger: &Trigger{Integration: "crm", TriggerID: "contact.created"},
		Steps: []Step{
			{
				ID:          "s1",
				Integration: "mail",
				ActionID:    "send",
				Input: InputSpec{
					StaticValues: map[string]any{"subject": "hi"},
				},
			},
		},
	}
}

func TestValidateOK(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	res := v.Validate(validDefinition())
	if !res.Valid {
		t.Fatalf("expected valid, got errors: %+v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", res.Warnings)
	}
}

func TestValidateMissingTrigger(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	def := validDefinition()
	def.Trigger = nil
	res := v.Validate(def)
	if res.Valid {
		t.Fatalf("expected invalid")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %+v", res.Errors)
	}
	if res.Errors[0].Code != CodeMissingTrigger {
		t.Fatalf("expected MISSING_TRIGGER, got %s", res.Errors[0].Code)
	}
}

func TestValidateNoSteps(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	def := validDefinition()
	def.Steps = nil
	res := v.Validate(def)
	if res.Valid {
		t.Fatalf("expected invalid")
	}
	if !hasCode(res.Errors, CodeNoSteps) {
		t.Fatalf("expected NO_STEPS, got %+v", res.Errors)
	}
}

func TestValidateNoMappingsWarning(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	def := validDefinition()
	def.Steps[0].Input = InputSpec{}
	res := v.Validate(def)
	if !res.Valid {
		t.Fatalf("warnings must not block acceptance: %+v", res.Errors)
	}
	if !hasCode(res.Warnings, CodeNoMappings) {
		t.Fatalf("expected NO_MAPPINGS warning, got %+v", res.Warnings)
	}
}

func TestValidateUnknownAction(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	def := validDefinition()
	def.Steps[0].ActionID = "does-not-exist"
	res := v.Validate(def)
	if res.Valid {
		t.Fatalf("expected invalid")
	}
	if !hasCode(res.Errors, CodeActionNotFound) {
		t.Fatalf("expected ACTION_NOT_FOUND, got %+v", res.Errors)
	}
}

func TestValidateUnknownTriggerIntegration(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	def := validDefinition()
	def.Trigger.Integration = "nope"
	res := v.Validate(def)
	if !hasCode(res.Errors, CodeIntegrationNotFound) {
		t.Fatalf("expected INTEGRATION_NOT_FOUND, got %+v", res.Errors)
	}
}

func TestValidateSettings(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	def := validDefinition()
	def.Settings = &Settings{TimeoutSec: -1, Concurrency: -2}
	res := v.Validate(def)
	if !hasCode(res.Errors, CodeInvalidTimeout) || !hasCode(res.Errors, CodeInvalidConcurrency) {
		t.Fatalf("expected timeout and concurrency errors, got %+v", res.Errors)
	}
}

func TestValidateInvalidRetry(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	def := validDefinition()
	def.Steps[0].Retry = &RetryConfig{MaxAttempts: -1}
	res := v.Validate(def)
	if !hasCode(res.Errors, CodeInvalidRetry) {
		t.Fatalf("expected INVALID_RETRY, got %+v", res.Errors)
	}
}

func TestValidateRawSchemaInvalid(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	res := v.ValidateRaw([]byte(`{"steps": "not-an-array"`))
	if res.Valid {
		t.Fatalf("expected invalid")
	}
	if res.Errors[0].Code != CodeSchemaInvalid {
		t.Fatalf("expected SCHEMA_INVALID, got %s", res.Errors[0].Code)
	}

	res = v.ValidateRaw([]byte(`{"steps": "not-an-array"}`))
	if res.Valid || res.Errors[0].Code != CodeSchemaInvalid {
		t.Fatalf("expected SCHEMA_INVALID for wrong type, got %+v", res.Errors)
	}
}

func TestValidateRawSemanticPassthrough(t *testing.T) {
	v := NewValidator(newTestRegistry(t))

	res := v.ValidateRaw([]byte(`{"version": "1.0"}`))
	if res.Valid {
		t.Fatalf("expected invalid")
	}
	if !hasCode(res.Errors, CodeMissingTrigger) || !hasCode(res.Errors, CodeNoSteps) {
		t.Fatalf("expected semantic errors, got %+v", res.Errors)
	}
}

func hasCode(issues []Issue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}
