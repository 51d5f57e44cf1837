package workflow

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/workbridge-io/workbridge/core/infra/schema"
	"github.com/workbridge-io/workbridge/core/registry"
)

//go:embed schema/*.json
var definitionSchemaFS embed.FS

const definitionSchemaFile = "schema/definition.schema.json"

// Validation issue codes.
const (
	CodeSchemaInvalid       = "SCHEMA_INVALID"
	CodeMissingVersion      = "MISSING_VERSION"
	CodeMissingTrigger      = "MISSING_TRIGGER"
	CodeIntegrationNotFound = "INTEGRATION_NOT_FOUND"
	CodeTriggerNotFound     = "TRIGGER_NOT_FOUND"
	CodeNoSteps             = "NO_STEPS"
	CodeMissingStepID       = "MISSING_STEP_ID"
	CodeMissingIntegration  = "MISSING_INTEGRATION"
	CodeMissingAction       = "MISSING_ACTION"
	CodeInvalidRetry        = "INVALID_RETRY"
	CodeInvalidTimeout      = "INVALID_TIMEOUT"
	CodeInvalidConcurrency  = "INVALID_CONCURRENCY"
	CodeNoMappings          = "NO_MAPPINGS"
)

// Issue is one validation finding, anchored to a path in the definition.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a definition. Warnings
// never affect Valid.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validator checks workflow definitions against structural and semantic
// rules, resolving integrations and actions through the registry.
type Validator struct {
	registry *registry.Registry
}

func NewValidator(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// ValidateRaw runs the structural schema check on raw JSON before
// semantic validation. Malformed documents fail with SCHEMA_INVALID and
// semantic checks are skipped.
func (v *Validator) ValidateRaw(data []byte) ValidationResult {
	schemaBytes, err := definitionSchemaFS.ReadFile(definitionSchemaFile)
	if err != nil {
		return schemaInvalid(fmt.Sprintf("load definition schema: %v", err))
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return schemaInvalid(fmt.Sprintf("parse definition: %v", err))
	}
	if err := schema.Validate("definition", schemaBytes, payload); err != nil {
		return schemaInvalid(err.Error())
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return schemaInvalid(fmt.Sprintf("decode definition: %v", err))
	}
	return v.Validate(&def)
}

// Validate runs the semantic checks. Each finding carries a path into the
// definition, a stable code, and a human-readable message.
func (v *Validator) Validate(def *Definition) ValidationResult {
	res := ValidationResult{Errors: []Issue{}, Warnings: []Issue{}}

	if def.Version == "" {
		res.addError("version", CodeMissingVersion, "workflow version is required")
	}

	if def.Trigger == nil || (def.Trigger.Integration == "" && def.Trigger.TriggerID == "") {
		res.addError("trigger", CodeMissingTrigger, "workflow trigger is required")
	} else {
		if !v.registry.HasIntegration(def.Trigger.Integration) {
			res.addError("trigger.integration", CodeIntegrationNotFound,
				fmt.Sprintf("integration %q is not registered", def.Trigger.Integration))
		} else if !v.registry.HasTrigger(def.Trigger.Integration, def.Trigger.TriggerID) {
			res.addError("trigger.trigger_id", CodeTriggerNotFound,
				fmt.Sprintf("trigger %q not found on integration %q", def.Trigger.TriggerID, def.Trigger.Integration))
		}
	}

	if len(def.Steps) == 0 {
		res.addError("steps", CodeNoSteps, "workflow must have at least one step")
	}

	for i, step := range def.Steps {
		base := fmt.Sprintf("steps[%d]", i)
		if step.ID == "" {
			res.addError(base+".id", CodeMissingStepID, "step id is required")
		}
		if step.Integration == "" {
			res.addError(base+".integration", CodeMissingIntegration, "step integration is required")
		}
		if step.ActionID == "" {
			res.addError(base+".action_id", CodeMissingAction, "step action is required")
		}
		if step.Integration != "" && step.ActionID != "" {
			if !v.registry.HasIntegration(step.Integration) {
				res.addError(base+".integration", CodeIntegrationNotFound,
					fmt.Sprintf("integration %q is not registered", step.Integration))
			} else if !v.registry.HasAction(step.Integration, step.ActionID) {
				res.addError(base+".action_id", CodeActionNotFound,
					fmt.Sprintf("action %q not found on integration %q", step.ActionID, step.Integration))
			}
		}
		if step.Retry != nil && step.Retry.MaxAttempts < 0 {
			res.addError(base+".retry.max_attempts", CodeInvalidRetry, "retry max_attempts must be >= 0")
		}
		if len(step.Input.Mappings) == 0 && len(step.Input.StaticValues) == 0 {
			res.addWarning(base+".input", CodeNoMappings,
				fmt.Sprintf("step %q has no input mappings", step.ID))
		}
	}

	if def.Settings != nil {
		if def.Settings.TimeoutSec < 0 {
			res.addError("settings.timeout_sec", CodeInvalidTimeout, "timeout must be >= 0")
		}
		if def.Settings.Concurrency != 0 && def.Settings.Concurrency < 1 {
			res.addError("settings.concurrency", CodeInvalidConcurrency, "concurrency must be >= 1")
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func (r *ValidationResult) addError(path, code, message string) {
	r.Errors = append(r.Errors, Issue{Path: path, Code: code, Message: message})
}

func (r *ValidationResult) addWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Code: code, Message: message})
}

func schemaInvalid(message string) ValidationResult {
	return ValidationResult{
		Valid:    false,
		Errors:   []Issue{{Path: "$", Code: CodeSchemaInvalid, Message: message}},
		Warnings: []Issue{},
	}
}
