package condition

// PathBuilder starts a fluent attribute test, as in
// When("document.type").Equals("text/plain").
type PathBuilder struct {
	path string
}

// When selects the path a test will read. Paths not starting with an
// envelope key are resolved under data.
func When(path string) PathBuilder {
	return PathBuilder{path: path}
}

func (b PathBuilder) Equals(v any) Expr    { return Test{Path: b.path, Op: OpEquals, Value: v} }
func (b PathBuilder) NotEquals(v any) Expr { return Test{Path: b.path, Op: OpNotEquals, Value: v} }
func (b PathBuilder) Includes(v any) Expr  { return Test{Path: b.path, Op: OpIncludes, Value: v} }
func (b PathBuilder) Exists() Expr         { return Test{Path: b.path, Op: OpExists} }

// Matches tests the value against a doublestar glob.
func (b PathBuilder) Matches(pattern string) Expr {
	return Test{Path: b.path, Op: OpMatches, Value: pattern}
}

// Type tests the event type.
func Type(t string) Expr { return When("type").Equals(t) }

// DocumentType tests the document mime type exactly.
func DocumentType(mime string) Expr { return When("document.type").Equals(mime) }

// Kind tests metadata.properties.kind.
func Kind(kind string) Expr { return When("metadata.properties.kind").Equals(kind) }

// MimeTypes accepts documents whose mime type matches one of patterns, e.g.
// "text/plain" or "image/*". With no patterns every document is accepted.
func MimeTypes(patterns ...string) Expr {
	if len(patterns) == 0 {
		return nil
	}
	exprs := make([]Expr, 0, len(patterns))
	for _, p := range patterns {
		exprs = append(exprs, When("document.type").Matches(p))
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	return Or(exprs...)
}

// Gate ANDs the input-type gate with a middleware's own condition.
func Gate(supportedTypes []string, expr Expr) Expr {
	mime := MimeTypes(supportedTypes...)
	switch {
	case mime == nil:
		return expr
	case expr == nil:
		return mime
	default:
		return And(mime, expr)
	}
}
