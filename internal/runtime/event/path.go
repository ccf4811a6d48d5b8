package event

import (
	"reflect"
	"strconv"
	"strings"
)

var envelopeKeys = map[string]struct{}{
	"id":       {},
	"type":     {},
	"time":     {},
	"chainId":  {},
	"sequence": {},
	"data":     {},
}

// Tree returns the wire-shaped view of e that paths are resolved against.
// The metadata subtree is shared with e and must not be modified.
func (e Event) Tree() map[string]any {
	doc := map[string]any{
		"url":  e.Document.URL,
		"type": e.Document.Type,
		"size": e.Document.Size,
	}
	if e.Document.ETag != "" {
		doc["etag"] = e.Document.ETag
	}
	md := e.Metadata
	if md == nil {
		md = Metadata{}
	}
	return map[string]any{
		"id":       e.ID.String(),
		"type":     string(e.Type),
		"time":     FormatTime(e.Time),
		"chainId":  e.ChainID.String(),
		"sequence": e.Sequence,
		"data": map[string]any{
			"document": doc,
			"metadata": map[string]any(md),
		},
	}
}

// Lookup walks a dotted path into e. Numeric segments index arrays. Paths
// that do not start with an envelope key are resolved under data, so
// "document.type" and "data.document.type" are equivalent.
func Lookup(e Event, path string) (any, bool) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, false
	}
	if _, ok := envelopeKeys[segments[0]]; !ok {
		segments = append([]string{"data"}, segments...)
	}
	return Walk(e.Tree(), segments)
}

// SplitPath splits a dotted path, dropping empty segments.
func SplitPath(path string) []string {
	raw := strings.Split(strings.TrimSpace(path), ".")
	out := raw[:0]
	for _, seg := range raw {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Walk follows segments through nested maps and slices.
func Walk(root any, segments []string) (any, bool) {
	current := root
	for _, seg := range segments {
		next, ok := step(current, seg)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func step(current any, seg string) (any, bool) {
	if m, ok := asMap(current); ok {
		v, found := m[seg]
		return v, found
	}
	if list, ok := current.([]any); ok {
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(list) {
			return nil, false
		}
		return list[idx], true
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	}
	return nil, false
}
