package mapping

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Transform types in the closed catalog.
const (
	TransformStatic       = "static"
	TransformTemplate     = "template"
	TransformFunction     = "function"
	TransformConditional  = "conditional"
	TransformFormatDate   = "format-date"
	TransformFormatNumber = "format-number"
	TransformParseJSON    = "parse-json"
	TransformToUppercase  = "to-uppercase"
	TransformToLowercase  = "to-lowercase"
	TransformTrim         = "trim"
	TransformSplit        = "split"
	TransformJoin         = "join"
	TransformReplace      = "replace"
	TransformRegex        = "regex"
)

// Transform is a tagged variant: a catalog type plus its configuration.
type Transform struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

var templatePattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// exprPrograms caches compiled function-transform expressions so repeated
// executions of the same workflow do not recompile.
type exprPrograms struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newExprPrograms() *exprPrograms {
	return &exprPrograms{cache: make(map[string]*vm.Program)}
}

func (p *exprPrograms) run(expression string, env map[string]any) (any, error) {
	p.mu.RLock()
	program, ok := p.cache[expression]
	p.mu.RUnlock()
	if !ok {
		var err error
		program, err = expr.Compile(expression)
		if err != nil {
			return nil, errf(CodeInvalidTransform, "compile expression: %v", err)
		}
		p.mu.Lock()
		p.cache[expression] = program
		p.mu.Unlock()
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, errf(CodeInvalidTransform, "run expression: %v", err)
	}
	return out, nil
}

func (e *Engine) applyTransform(t *Transform, value any, source map[string]any) (any, error) {
	switch t.Type {
	case TransformStatic:
		return t.Config["value"], nil
	case TransformTemplate:
		return renderTemplate(configString(t.Config, "template"), source), nil
	case TransformFunction:
		return e.programs.run(configString(t.Config, "expression"), map[string]any{
			"value":  value,
			"source": source,
		})
	case TransformConditional:
		return applyConditional(t.Config, value)
	case TransformFormatDate:
		return formatDate(value, configString(t.Config, "format"))
	case TransformFormatNumber:
		return formatNumber(value, t.Config)
	case TransformParseJSON:
		return parseJSON(value)
	case TransformToUppercase:
		return strings.ToUpper(coerceString(value)), nil
	case TransformToLowercase:
		return strings.ToLower(coerceString(value)), nil
	case TransformTrim:
		return strings.TrimSpace(coerceString(value)), nil
	case TransformSplit:
		return splitValue(value, t.Config), nil
	case TransformJoin:
		return joinValue(value, t.Config), nil
	case TransformReplace:
		return replaceValue(value, t.Config)
	case TransformRegex:
		return regexExtract(value, t.Config)
	default:
		e.log.Warn("unknown transform type, passing value through", "type", t.Type)
		return value, nil
	}
}

// renderTemplate substitutes {{path}} placeholders resolved against the
// source document. Unresolved placeholders stay literal.
func renderTemplate(tmpl string, source map[string]any) string {
	return templatePattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		steps, err := parsePath(path)
		if err != nil {
			return match
		}
		val, ok := extract(source, steps)
		if !ok {
			return match
		}
		return coerceString(val)
	})
}

func applyConditional(config map[string]any, value any) (any, error) {
	operator := configString(config, "operator")
	compare := config["compareValue"]
	var pass bool
	switch operator {
	case "equals":
		pass = looseEqual(value, compare)
	case "not_equals":
		pass = !looseEqual(value, compare)
	case "greater_than":
		pass = toFloat(value) > toFloat(compare)
	case "less_than":
		pass = toFloat(value) < toFloat(compare)
	case "contains":
		pass = contains(value, compare)
	case "exists":
		pass = value != nil
	case "empty":
		pass = isEmpty(value)
	default:
		return nil, errf(CodeInvalidTransform, "unknown conditional operator %q", operator)
	}
	if pass {
		return config["ifTrue"], nil
	}
	return config["ifFalse"], nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC822,
}

func formatDate(value any, layout string) (any, error) {
	var parsed time.Time
	switch v := value.(type) {
	case time.Time:
		parsed = v
	case float64:
		parsed = time.Unix(int64(v), 0).UTC()
	case int64:
		parsed = time.Unix(v, 0).UTC()
	case int:
		parsed = time.Unix(int64(v), 0).UTC()
	case string:
		var err error
		for _, l := range dateLayouts {
			if parsed, err = time.Parse(l, v); err == nil {
				break
			}
		}
		if err != nil {
			return nil, errf(CodeInvalidDate, "unparsable date %q", v)
		}
	default:
		return nil, errf(CodeInvalidDate, "unparsable date %v", value)
	}
	if layout == "" {
		layout = time.RFC3339
	}
	return parsed.Format(layout), nil
}

func formatNumber(value any, config map[string]any) (any, error) {
	f, ok := toFloatOK(value)
	if !ok {
		return nil, errf(CodeInvalidNumber, "non-numeric value %v", value)
	}
	decimals := 2
	if d, ok := toFloatOK(config["decimals"]); ok && d >= 0 {
		decimals = int(d)
	}
	locale := configString(config, "locale")
	if locale == "" {
		locale = "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)
	return printer.Sprintf("%v", number.Decimal(f, number.Scale(decimals))), nil
}

func parseJSON(value any) (any, error) {
	raw, ok := value.(string)
	if !ok {
		return nil, errf(CodeInvalidJSON, "parse-json expects a string, got %T", value)
	}
	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errf(CodeInvalidJSON, "parse json: %v", err)
	}
	return out, nil
}

func splitValue(value any, config map[string]any) []any {
	delim := configString(config, "delimiter")
	if delim == "" {
		delim = ","
	}
	parts := strings.Split(coerceString(value), delim)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

func joinValue(value any, config map[string]any) string {
	delim := configString(config, "delimiter")
	if delim == "" {
		delim = ","
	}
	switch v := value.(type) {
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = coerceString(item)
		}
		return strings.Join(parts, delim)
	case []string:
		return strings.Join(v, delim)
	default:
		return coerceString(value)
	}
}

func replaceValue(value any, config map[string]any) (any, error) {
	pattern := configString(config, "pattern")
	flags := configString(config, "flags")
	if strings.ContainsRune(flags, 'i') {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errf(CodeInvalidTransform, "bad replace pattern: %v", err)
	}
	input := coerceString(value)
	replacement := configString(config, "replacement")
	if strings.ContainsRune(flags, 'g') {
		return re.ReplaceAllString(input, replacement), nil
	}
	// without the g flag only the first match is replaced
	loc := re.FindStringIndex(input)
	if loc == nil {
		return input, nil
	}
	replaced := re.ReplaceAllString(input[loc[0]:loc[1]], replacement)
	return input[:loc[0]] + replaced + input[loc[1]:], nil
}

func regexExtract(value any, config map[string]any) (any, error) {
	pattern := configString(config, "pattern")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errf(CodeInvalidTransform, "bad regex pattern: %v", err)
	}
	group := 0
	if g, ok := toFloatOK(config["group"]); ok && g >= 0 {
		group = int(g)
	}
	matches := re.FindStringSubmatch(coerceString(value))
	if matches == nil || group >= len(matches) {
		return nil, nil
	}
	return matches[group], nil
}

func configString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	if s, ok := config[key].(string); ok {
		return s
	}
	return ""
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func looseEqual(a, b any) bool {
	if af, ok := toFloatOK(a); ok {
		if bf, ok := toFloatOK(b); ok {
			return af == bf
		}
	}
	return coerceString(a) == coerceString(b)
}

func contains(value, needle any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, coerceString(needle))
	case []any:
		for _, item := range v {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := v[coerceString(needle)]
		return ok
	default:
		return false
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func toFloat(v any) float64 {
	f, _ := toFloatOK(v)
	return f
}

func toFloatOK(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
