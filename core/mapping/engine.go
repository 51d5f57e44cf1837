package mapping

import (
	"github.com/workbridge-io/workbridge/core/infra/logging"
)

// FieldMapping projects a value from a source path to a target path,
// optionally through a transform.
type FieldMapping struct {
	Source    string     `json:"source"`
	Target    string     `json:"target"`
	Transform *Transform `json:"transform,omitempty"`
}

// Engine applies ordered field mappings to build a step's input document.
type Engine struct {
	programs *exprPrograms
	log      *logging.Scope
}

// NewEngine returns a mapping engine with an empty expression cache.
func NewEngine() *Engine {
	return &Engine{
		programs: newExprPrograms(),
		log:      logging.NewScope("MAPPING"),
	}
}

// Apply builds the output document. It starts from a shallow copy of
// staticValues, then evaluates each mapping in declared order: extract at
// Source, transform if configured, write at Target. Later mappings may
// overwrite earlier ones. Unmapped source fields never reach the output.
func (e *Engine) Apply(mappings []FieldMapping, source map[string]any, staticValues map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(staticValues)+len(mappings))
	for k, v := range staticValues {
		out[k] = v
	}
	for _, m := range mappings {
		srcSteps, err := parsePath(m.Source)
		if err != nil {
			return nil, err
		}
		value, _ := extract(source, srcSteps)
		if m.Transform != nil {
			value, err = e.applyTransform(m.Transform, value, source)
			if err != nil {
				return nil, err
			}
		}
		dstSteps, err := parsePath(m.Target)
		if err != nil {
			return nil, err
		}
		if err := write(out, dstSteps, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}
