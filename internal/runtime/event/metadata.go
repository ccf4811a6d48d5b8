package event

// Metadata is the accumulated, kind-scoped metadata tree of a document.
// properties.kind discriminates the document kind and properties.attrs holds
// the attributes scoped to it.
type Metadata map[string]any

// Well-known kinds stored under properties.kind.
const (
	KindText  = "text"
	KindImage = "image"
	KindAudio = "audio"
	KindVideo = "video"
)

// Kind returns properties.kind, or "" when unset.
func (m Metadata) Kind() string {
	props, _ := asMap(m["properties"])
	kind, _ := props["kind"].(string)
	return kind
}

// Attrs returns a copy of properties.attrs.
func (m Metadata) Attrs() map[string]any {
	props, _ := asMap(m["properties"])
	attrs, ok := asMap(props["attrs"])
	if !ok {
		return map[string]any{}
	}
	return deepCopyMap(attrs)
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return Metadata(deepCopyMap(m))
}

// Merge returns m deep-merged with patch. m is left unchanged.
func (m Metadata) Merge(patch map[string]any) Metadata {
	return Metadata(DeepMerge(m, patch))
}

// KindPatch builds a patch setting properties.kind and merging attrs.
func KindPatch(kind string, attrs map[string]any) map[string]any {
	props := map[string]any{"kind": kind}
	if len(attrs) > 0 {
		props["attrs"] = attrs
	}
	return map[string]any{"properties": props}
}
