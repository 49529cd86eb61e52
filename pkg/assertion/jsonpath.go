package assertion

import (
	"encoding/json"
	"strconv"
	"strings"
)

// lookup walks a dotted JSON path with optional [i] integer subscripts
// (e.g. "user.addresses[0].city") against a parsed JSON document.
// Evaluation is null-safe: any missing intermediate node, type mismatch,
// or out-of-range index causes the value to be treated as absent — it
// never panics or returns an error.
func lookup(doc any, path string) (value any, present bool) {
	if path == "" {
		return doc, true
	}

	cur := doc
	for _, segment := range splitPath(path) {
		if cur == nil {
			return nil, false
		}
		if segment.index != nil {
			arr, ok := cur.([]any)
			if !ok {
				return nil, false
			}
			idx := *segment.index
			if idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
			continue
		}

		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := obj[segment.field]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

type pathSegment struct {
	field string // set when this segment is a map key access
	index *int   // set when this segment is an [i] subscript
}

// splitPath parses "a.b[0].c" into [{field:"a"} {field:"b"} {index:0} {field:"c"}].
// A leading "$" root marker, if present, is ignored.
func splitPath(path string) []pathSegment {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		field, indices := extractIndices(part)
		if field != "" {
			segments = append(segments, pathSegment{field: field})
		}
		for _, idx := range indices {
			i := idx
			segments = append(segments, pathSegment{index: &i})
		}
	}
	return segments
}

// extractIndices splits "addresses[0][1]" into ("addresses", [0, 1]).
func extractIndices(part string) (field string, indices []int) {
	bracket := strings.IndexByte(part, '[')
	if bracket == -1 {
		return part, nil
	}
	field = part[:bracket]
	rest := part[bracket:]
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			break
		}
		n, err := strconv.Atoi(rest[1:end])
		if err == nil {
			indices = append(indices, n)
		}
		rest = rest[end+1:]
	}
	return field, indices
}

// stringify renders a JSON value the way matchers compare it: strings
// pass through unquoted, numbers/bools render via json.Marshal semantics,
// and null renders as "null".
func stringify(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// asNumber converts a JSON value to float64 if possible.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
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

func isJSONNull(v any, present bool) bool {
	return !present || v == nil
}

// ExtractString looks up path in a parsed JSON document and returns its
// stringified value. Used by the step executor for value extraction: a
// missing or null value is reported as absent rather than an error.
func ExtractString(doc any, path string) (string, bool) {
	v, present := lookup(doc, path)
	if isJSONNull(v, present) {
		return "", false
	}
	return stringify(v), true
}
