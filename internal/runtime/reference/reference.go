// Package reference implements lazily resolved values used in middleware
// settings: literals, pointers into the pointer store, external URLs and
// attributes of the event being processed.
package reference

import (
	"errors"
	"fmt"

	"github.com/drblury/docflow/internal/runtime/jsoncodec"
	"github.com/drblury/docflow/internal/runtime/pointer"
)

// Kind discriminates the Reference variants.
type Kind string

const (
	KindValue     Kind = "value"
	KindPointer   Kind = "pointer"
	KindURL       Kind = "url"
	KindAttribute Kind = "attribute"
)

// Reference is a deferred value. The zero Reference is invalid.
type Reference struct {
	kind   Kind
	value  any
	target string
}

// Value wraps a literal. Strings and byte slices resolve to their bytes;
// anything else resolves to its JSON encoding.
func Value(v any) Reference {
	return Reference{kind: KindValue, value: v}
}

// Pointer refers to bytes held in the pointer store.
func Pointer(p pointer.Pointer) Reference {
	return Reference{kind: KindPointer, target: p.String()}
}

// URL refers to an external object, fetched by URI scheme.
func URL(u string) Reference {
	return Reference{kind: KindURL, target: u}
}

// Attribute refers to a dotted path into the event being processed.
func Attribute(path string) Reference {
	return Reference{kind: KindAttribute, target: path}
}

// Kind returns the variant of r.
func (r Reference) Kind() Kind { return r.kind }

// Literal returns the literal of a value reference.
func (r Reference) Literal() (any, bool) {
	if r.kind != KindValue {
		return nil, false
	}
	return r.value, true
}

// Target returns the pointer, URL or path of a non-literal reference.
func (r Reference) Target() string { return r.target }

// IsZero reports whether r was never initialised.
func (r Reference) IsZero() bool { return r.kind == "" }

func (r Reference) String() string {
	switch r.kind {
	case KindValue:
		return "value"
	case "":
		return "reference(<nil>)"
	default:
		return fmt.Sprintf("%s(%s)", r.kind, r.target)
	}
}

// MarshalJSON encodes the tagged wire shape, for example
// {"type":"url","url":"s3://bucket/key"}.
func (r Reference) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case KindValue:
		return jsoncodec.Marshal(map[string]any{"type": KindValue, "value": r.value})
	case KindPointer:
		return jsoncodec.Marshal(map[string]any{"type": KindPointer, "pointer": r.target})
	case KindURL:
		return jsoncodec.Marshal(map[string]any{"type": KindURL, "url": r.target})
	case KindAttribute:
		return jsoncodec.Marshal(map[string]any{"type": KindAttribute, "path": r.target})
	default:
		return nil, errors.New("cannot marshal an empty reference")
	}
}

// UnmarshalJSON decodes the tagged wire shape.
func (r *Reference) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := jsoncodec.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid reference: %w", err)
	}
	typ, _ := raw["type"].(string)

	switch Kind(typ) {
	case KindValue:
		v, ok := raw["value"]
		if !ok {
			return errors.New("invalid reference: value is required")
		}
		*r = Value(v)
	case KindPointer:
		s, _ := raw["pointer"].(string)
		p, err := pointer.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid reference: %w", err)
		}
		*r = Pointer(p)
	case KindURL:
		s, _ := raw["url"].(string)
		if s == "" {
			return errors.New("invalid reference: url is required")
		}
		*r = URL(s)
	case KindAttribute:
		s, _ := raw["path"].(string)
		if s == "" {
			return errors.New("invalid reference: path is required")
		}
		*r = Attribute(s)
	default:
		return fmt.Errorf("invalid reference: unknown type %q", typ)
	}
	return nil
}

// literalBytes never fails: values JSON cannot encode fall back to their
// fmt representation.
func literalBytes(v any) []byte {
	switch value := v.(type) {
	case nil:
		return nil
	case []byte:
		return append([]byte(nil), value...)
	case string:
		return []byte(value)
	default:
		data, err := jsoncodec.Marshal(value)
		if err != nil {
			return []byte(fmt.Sprint(value))
		}
		return data
	}
}
