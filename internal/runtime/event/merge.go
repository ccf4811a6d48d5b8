package event

import "reflect"

// DeepMerge returns a new map holding base with patch applied. Nested objects
// merge key by key; scalars and arrays in patch replace the base value
// wholesale. Neither input is modified and the result shares no mutable
// values with them.
func DeepMerge(base, patch map[string]any) map[string]any {
	out := deepCopyMap(base)
	for key, value := range patch {
		patchMap, patchIsMap := asMap(value)
		existing, existingIsMap := asMap(out[key])
		if patchIsMap && existingIsMap {
			out[key] = DeepMerge(existing, patchMap)
			continue
		}
		out[key] = deepCopy(value)
	}
	return out
}

// asMap views v as a JSON object. Metadata and map[string]any both qualify.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case Metadata:
		return map[string]any(m), m != nil
	default:
		return nil, false
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch value := v.(type) {
	case map[string]any:
		if value == nil {
			return value
		}
		return deepCopyMap(value)
	case Metadata:
		if value == nil {
			return map[string]any(nil)
		}
		return deepCopyMap(value)
	case []any:
		if value == nil {
			return value
		}
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = deepCopy(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}
