package reference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/drblury/docflow/internal/runtime/event"
	"github.com/drblury/docflow/internal/runtime/pointer"
)

// DefaultOffloadThreshold is the literal size above which Offload moves a
// value into the pointer store.
const DefaultOffloadThreshold = 3072

// Offload replaces a value reference whose encoded literal exceeds
// threshold bytes with a pointer reference. Other references are returned
// unchanged. A threshold <= 0 uses DefaultOffloadThreshold.
func Offload(ctx context.Context, store pointer.Store, namespace string, ref Reference, threshold int) (Reference, error) {
	if ref.kind != KindValue {
		return ref, nil
	}
	if threshold <= 0 {
		threshold = DefaultOffloadThreshold
	}
	data := literalBytes(ref.value)
	if len(data) <= threshold {
		return ref, nil
	}
	p, err := store.Put(ctx, namespace, data)
	if err != nil {
		return Reference{}, err
	}
	return Pointer(p), nil
}

// OffloadAll applies Offload to every entry of refs and returns a new map.
func OffloadAll(ctx context.Context, store pointer.Store, namespace string, refs map[string]Reference, threshold int) (map[string]Reference, error) {
	out := make(map[string]Reference, len(refs))
	for name, ref := range refs {
		offloaded, err := Offload(ctx, store, namespace, ref, threshold)
		if err != nil {
			return nil, err
		}
		out[name] = offloaded
	}
	return out, nil
}

// StoreDocument puts data into the store and returns a document descriptor
// pointing at it, for compute units producing new content.
func StoreDocument(ctx context.Context, store pointer.Store, namespace, mimeType string, data []byte) (event.Document, error) {
	p, err := store.Put(ctx, namespace, data)
	if err != nil {
		return event.Document{}, err
	}
	sum := sha256.Sum256(data)
	return event.Document{
		URL:  p.String(),
		Type: mimeType,
		Size: int64(len(data)),
		ETag: hex.EncodeToString(sum[:16]),
	}, nil
}
