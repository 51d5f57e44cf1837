package secrets

import "strings"

const (
	secretPrefix = "secret://"
	redactedMark = "<redacted>"
)

// Redact returns a copy of value with any string beginning with the
// secret reference prefix replaced by a redaction marker. Step inputs and
// outputs pass through here before they are written to the audit trail.
func Redact(value any) any {
	out, _ := walk(value)
	return out
}

// ContainsSecretRefs reports whether any string value carries a secret reference.
func ContainsSecretRefs(value any) bool {
	_, found := walk(value)
	return found
}

func walk(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return v, false
	case string:
		if strings.HasPrefix(strings.TrimSpace(v), secretPrefix) {
			return redactedMark, true
		}
		return v, false
	case map[string]any:
		changed := false
		out := make(map[string]any, len(v))
		for k, item := range v {
			next, c := walk(item)
			out[k] = next
			changed = changed || c
		}
		if !changed {
			return v, false
		}
		return out, true
	case []any:
		changed := false
		out := make([]any, len(v))
		for i, item := range v {
			next, c := walk(item)
			out[i] = next
			changed = changed || c
		}
		if !changed {
			return v, false
		}
		return out, true
	default:
		return v, false
	}
}
