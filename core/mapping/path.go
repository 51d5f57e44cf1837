package mapping

import (
	"strconv"
	"strings"
)

// pathStep is one hop in a document path: either a map field or an array index.
type pathStep struct {
	field string
	index int
	isIdx bool
}

// parsePath tokenizes the restricted path syntax: "$" for the whole
// document, "$.a.b" for nested fields, "[0]" suffixes for array indexes.
// The root path returns an empty step list.
func parsePath(path string) ([]pathStep, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errf(CodeInvalidPath, "empty path")
	}
	if path == "$" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "$.") {
		return nil, errf(CodeInvalidPath, "path must start with $: %q", path)
	}
	var steps []pathStep
	for _, segment := range strings.Split(path[2:], ".") {
		if segment == "" {
			return nil, errf(CodeInvalidPath, "empty segment in %q", path)
		}
		field := segment
		var indexes []int
		for {
			open := strings.IndexByte(field, '[')
			if open == -1 {
				break
			}
			end := strings.IndexByte(field, ']')
			if end < open {
				return nil, errf(CodeInvalidPath, "unbalanced brackets in %q", path)
			}
			idx, err := strconv.Atoi(field[open+1 : end])
			if err != nil || idx < 0 {
				return nil, errf(CodeInvalidPath, "bad index in %q", path)
			}
			indexes = append(indexes, idx)
			field = field[:open] + field[end+1:]
		}
		if field == "" && len(indexes) == 0 {
			return nil, errf(CodeInvalidPath, "empty segment in %q", path)
		}
		if field != "" {
			steps = append(steps, pathStep{field: field})
		}
		for _, idx := range indexes {
			steps = append(steps, pathStep{index: idx, isIdx: true})
		}
	}
	return steps, nil
}

// extract walks the source document along a parsed path. The second
// return reports whether every hop resolved.
func extract(source any, steps []pathStep) (any, bool) {
	cur := source
	for _, step := range steps {
		if step.isIdx {
			arr, ok := cur.([]any)
			if !ok || step.index >= len(arr) {
				return nil, false
			}
			cur = arr[step.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[step.field]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// write places value at the parsed path inside target, creating
// intermediate maps and growing arrays as needed. The root path is not
// a valid write target.
func write(target map[string]any, steps []pathStep, value any) error {
	if len(steps) == 0 {
		return errf(CodeInvalidTarget, "cannot write to document root")
	}
	var parentMap map[string]any = target
	var parentArr []any
	var inArr bool
	var arrSetter func([]any)

	for i, step := range steps {
		last := i == len(steps)-1
		if step.isIdx {
			if !inArr {
				return errf(CodeInvalidTarget, "index step without array context")
			}
			if step.index >= len(parentArr) {
				grown := make([]any, step.index+1)
				copy(grown, parentArr)
				parentArr = grown
				arrSetter(parentArr)
			}
			if last {
				parentArr[step.index] = value
				return nil
			}
			next := parentArr[step.index]
			switch n := next.(type) {
			case map[string]any:
				parentMap, inArr = n, false
			case []any:
				arr := parentArr
				idx := step.index
				parentArr = n
				arrSetter = func(updated []any) { arr[idx] = updated }
			default:
				created := containerFor(steps[i+1])
				parentArr[step.index] = created
				if m, ok := created.(map[string]any); ok {
					parentMap, inArr = m, false
				} else {
					arr := parentArr
					idx := step.index
					parentArr = created.([]any)
					arrSetter = func(updated []any) { arr[idx] = updated }
				}
			}
			continue
		}

		if inArr {
			return errf(CodeInvalidTarget, "field step %q inside array context", step.field)
		}
		if last {
			parentMap[step.field] = value
			return nil
		}
		next := parentMap[step.field]
		switch n := next.(type) {
		case map[string]any:
			parentMap = n
		case []any:
			m := parentMap
			field := step.field
			parentArr, inArr = n, true
			arrSetter = func(updated []any) { m[field] = updated }
		default:
			created := containerFor(steps[i+1])
			parentMap[step.field] = created
			if m, ok := created.(map[string]any); ok {
				parentMap = m
			} else {
				container := parentMap
				field := step.field
				parentArr, inArr = created.([]any), true
				arrSetter = func(updated []any) { container[field] = updated }
			}
		}
	}
	return nil
}

func containerFor(next pathStep) any {
	if next.isIdx {
		return make([]any, 0)
	}
	return map[string]any{}
}
