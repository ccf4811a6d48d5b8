// Package event implements the document event carried between middlewares:
// its wire envelope, validation, chain derivation and metadata merging.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	idspkg "github.com/drblury/docflow/internal/runtime/ids"
)

// Type is the kind of change an event describes.
type Type string

const (
	DocumentCreated Type = "document-created"
	DocumentUpdated Type = "document-updated"
	DocumentDeleted Type = "document-deleted"
)

// Valid reports whether t is a recognised event type.
func (t Type) Valid() bool {
	switch t {
	case DocumentCreated, DocumentUpdated, DocumentDeleted:
		return true
	default:
		return false
	}
}

func (t Type) String() string { return string(t) }

// Document locates the content an event is about. URL is an object-store
// URL, a cache:// pointer or an inline data: URI.
type Document struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	ETag string `json:"etag,omitempty"`
}

// Event is a single emission along a processing chain. Values are treated as
// immutable: the With* methods return modified copies.
type Event struct {
	ID       uuid.UUID
	Type     Type
	Time     time.Time
	ChainID  uuid.UUID
	Sequence int64
	Document Document
	Metadata Metadata
}

// New starts a new chain for doc.
func New(typ Type, doc Document) Event {
	return Event{
		ID:       idspkg.NewEventID(),
		Type:     typ,
		Time:     Now(),
		ChainID:  idspkg.NewChainID(),
		Sequence: 0,
		Document: doc,
		Metadata: Metadata{},
	}
}

// Derive builds the next event of parent's chain. The document and metadata
// are carried over and can be replaced with WithDocument and WithMetadata.
func Derive(parent Event, typ Type) Event {
	return Event{
		ID:       idspkg.NewEventID(),
		Type:     typ,
		Time:     Now(),
		ChainID:  parent.ChainID,
		Sequence: parent.Sequence + 1,
		Document: parent.Document,
		Metadata: parent.Metadata.Clone(),
	}
}

// WithDocument returns a copy of e describing doc.
func (e Event) WithDocument(doc Document) Event {
	out := e.Clone()
	out.Document = doc
	return out
}

// WithMetadata returns a copy of e with patch deep-merged into its metadata.
func (e Event) WithMetadata(patch map[string]any) Event {
	out := e.Clone()
	out.Metadata = e.Metadata.Merge(patch)
	return out
}

// WithMetadata deep-merges patch into evt's metadata. evt is left unchanged.
func WithMetadata(evt Event, patch map[string]any) Event {
	return evt.WithMetadata(patch)
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	out := e
	out.Metadata = e.Metadata.Clone()
	return out
}

// Validate checks the fields every emitted event must carry.
func (e Event) Validate() error {
	switch {
	case e.ID == uuid.Nil:
		return errspkg.NewValidationError("id", "is required")
	case !e.Type.Valid():
		return errspkg.NewValidationError("type", fmt.Sprintf("%q is not a known event type", e.Type))
	case e.Time.IsZero():
		return errspkg.NewValidationError("time", "is required")
	case e.ChainID == uuid.Nil:
		return errspkg.NewValidationError("chainId", "is required")
	case e.Sequence < 0:
		return errspkg.NewValidationError("sequence", "cannot be negative")
	case e.Document.URL == "":
		return errspkg.NewValidationError("data.document.url", "is required")
	case e.Document.Type == "":
		return errspkg.NewValidationError("data.document.type", "is required")
	case e.Document.Size < 0:
		return errspkg.NewValidationError("data.document.size", "cannot be negative")
	}
	return nil
}

// Precedes reports whether e comes before other on the same chain.
func (e Event) Precedes(other Event) bool {
	return e.ChainID == other.ChainID && e.Sequence < other.Sequence
}
