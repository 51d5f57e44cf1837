package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

const envLogFormat = "WORKBRIDGE_LOG_FORMAT"

var (
	logFormatOnce sync.Once
	logAsJSON     bool
)

func jsonEnabled() bool {
	logFormatOnce.Do(func() {
		logAsJSON = strings.EqualFold(strings.TrimSpace(os.Getenv(envLogFormat)), "json")
	})
	return logAsJSON
}

// Info logs a message with key/value fields using a consistent prefix.
func Info(component, msg string, kv ...interface{}) {
	emit("INFO", component, msg, kv...)
}

// Warn logs a warning message with key/value fields.
func Warn(component, msg string, kv ...interface{}) {
	emit("WARN", component, msg, kv...)
}

// Error logs an error message with key/value fields using a consistent prefix.
func Error(component, msg string, kv ...interface{}) {
	emit("ERROR", component, msg, kv...)
}

// Debug logs a debug message with key/value fields.
func Debug(component, msg string, kv ...interface{}) {
	emit("DEBUG", component, msg, kv...)
}

func emit(level, component, msg string, kv ...interface{}) {
	if jsonEnabled() {
		payload := map[string]any{
			"level":     level,
			"component": component,
			"msg":       msg,
		}
		for i := 0; i+1 < len(kv); i += 2 {
			payload[toString(kv[i])] = kv[i+1]
		}
		if data, err := json.Marshal(payload); err == nil {
			log.Print(string(data))
			return
		}
	}
	switch level {
	case "INFO":
		log.Printf("[%s] %s%s", strings.ToUpper(component), msg, formatFields(kv...))
	default:
		log.Printf("[%s] %s %s%s", strings.ToUpper(component), level, msg, formatFields(kv...))
	}
}

// Scope is a logger bound to a component plus fixed key/value fields,
// typically (execution_id, step) for per-step audit lines.
type Scope struct {
	component string
	fields    []interface{}
}

// NewScope returns a Scope for the component with fixed fields appended to every line.
func NewScope(component string, kv ...interface{}) *Scope {
	return &Scope{component: component, fields: kv}
}

// With returns a child scope carrying additional fixed fields.
func (s *Scope) With(kv ...interface{}) *Scope {
	merged := make([]interface{}, 0, len(s.fields)+len(kv))
	merged = append(merged, s.fields...)
	merged = append(merged, kv...)
	return &Scope{component: s.component, fields: merged}
}

func (s *Scope) Info(msg string, kv ...interface{})  { Info(s.component, msg, s.merge(kv)...) }
func (s *Scope) Warn(msg string, kv ...interface{})  { Warn(s.component, msg, s.merge(kv)...) }
func (s *Scope) Error(msg string, kv ...interface{}) { Error(s.component, msg, s.merge(kv)...) }
func (s *Scope) Debug(msg string, kv ...interface{}) { Debug(s.component, msg, s.merge(kv)...) }

func (s *Scope) merge(kv []interface{}) []interface{} {
	if len(s.fields) == 0 {
		return kv
	}
	merged := make([]interface{}, 0, len(s.fields)+len(kv))
	merged = append(merged, s.fields...)
	merged = append(merged, kv...)
	return merged
}

func formatFields(kv ...interface{}) string {
	if len(kv) == 0 {
		return ""
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "(missing)")
	}
	var b strings.Builder
	b.WriteString(" ")
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteString(" ")
		}
		key := kv[i]
		val := kv[i+1]
		b.WriteString(strings.TrimSpace(toString(key)))
		b.WriteString("=")
		b.WriteString(toString(val))
	}
	return b.String()
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(fmt.Sprintf("%v", t)), "\n", " "), "\t", " "))
	}
}
