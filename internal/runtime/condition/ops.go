package condition

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

func apply(op Op, actual any, found bool, want any) bool {
	if op == OpExists {
		return found
	}
	if !found {
		return op == OpNotEquals
	}
	switch op {
	case OpEquals:
		return equal(actual, want)
	case OpNotEquals:
		return !equal(actual, want)
	case OpIncludes:
		return includes(actual, want)
	case OpMatches:
		return matches(actual, want)
	default:
		return false
	}
}

func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// includes is substring containment for strings and membership for arrays.
func includes(actual, want any) bool {
	if s, ok := actual.(string); ok {
		sub, ok := want.(string)
		return ok && strings.Contains(s, sub)
	}
	items, ok := normalize(actual).([]any)
	if !ok {
		return false
	}
	needle := normalize(want)
	for _, item := range items {
		if reflect.DeepEqual(item, needle) {
			return true
		}
	}
	return false
}

// matches applies a doublestar glob such as "image/*" to a string value.
func matches(actual, want any) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	pattern, ok := want.(string)
	if !ok {
		return false
	}
	matched, err := doublestar.Match(pattern, s)
	return err == nil && matched
}

// normalize maps every numeric type onto float64 and typed containers onto
// []any and map[string]any so values decoded from JSON compare equal to Go
// literals.
func normalize(v any) any {
	switch n := v.(type) {
	case nil, bool, string, float64:
		return v
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = normalize(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	}
	return v
}
