package event

import (
	"fmt"

	"github.com/google/uuid"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/jsoncodec"
)

type wireEvent struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Time     string   `json:"time"`
	ChainID  string   `json:"chainId"`
	Sequence *int64   `json:"sequence"`
	Data     wireData `json:"data"`
}

type wireData struct {
	Document *wireDocument `json:"document"`
	Metadata Metadata      `json:"metadata"`
}

type wireDocument struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Size *int64 `json:"size,omitempty"`
	ETag string `json:"etag,omitempty"`
}

// Parse decodes and validates a wire envelope. Every failure is a
// *errors.ValidationError and is not retryable.
func Parse(data []byte) (Event, error) {
	var wire wireEvent
	if err := jsoncodec.Unmarshal(data, &wire); err != nil {
		return Event{}, &errspkg.ValidationError{Reason: "malformed envelope", Cause: err}
	}
	return fromWire(wire)
}

// Serialize encodes evt as a wire envelope.
func Serialize(evt Event) ([]byte, error) {
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return jsoncodec.Marshal(toWire(evt))
}

// MarshalJSON encodes the wire envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(toWire(e))
}

// UnmarshalJSON decodes and validates the wire envelope.
func (e *Event) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func toWire(evt Event) wireEvent {
	seq := evt.Sequence
	size := evt.Document.Size
	md := evt.Metadata
	if md == nil {
		md = Metadata{}
	}
	return wireEvent{
		ID:       evt.ID.String(),
		Type:     string(evt.Type),
		Time:     FormatTime(evt.Time),
		ChainID:  evt.ChainID.String(),
		Sequence: &seq,
		Data: wireData{
			Document: &wireDocument{
				URL:  evt.Document.URL,
				Type: evt.Document.Type,
				Size: &size,
				ETag: evt.Document.ETag,
			},
			Metadata: md,
		},
	}
}

func fromWire(wire wireEvent) (Event, error) {
	id, err := parseUUID("id", wire.ID)
	if err != nil {
		return Event{}, err
	}
	if wire.Type == "" {
		return Event{}, errspkg.NewValidationError("type", "is required")
	}
	typ := Type(wire.Type)
	if !typ.Valid() {
		return Event{}, errspkg.NewValidationError("type", fmt.Sprintf("%q is not a known event type", wire.Type))
	}
	if wire.Time == "" {
		return Event{}, errspkg.NewValidationError("time", "is required")
	}
	ts, err := ParseTime(wire.Time)
	if err != nil {
		return Event{}, &errspkg.ValidationError{Field: "time", Reason: "is not an RFC3339 timestamp", Cause: err}
	}
	chainID, err := parseUUID("chainId", wire.ChainID)
	if err != nil {
		return Event{}, err
	}
	if wire.Sequence == nil {
		return Event{}, errspkg.NewValidationError("sequence", "is required")
	}
	if wire.Data.Document == nil {
		return Event{}, errspkg.NewValidationError("data.document", "is required")
	}

	doc := Document{
		URL:  wire.Data.Document.URL,
		Type: wire.Data.Document.Type,
		ETag: wire.Data.Document.ETag,
	}
	if wire.Data.Document.Size != nil {
		doc.Size = *wire.Data.Document.Size
	}

	md := wire.Data.Metadata
	if md == nil {
		md = Metadata{}
	}

	evt := Event{
		ID:       id,
		Type:     typ,
		Time:     ts,
		ChainID:  chainID,
		Sequence: *wire.Sequence,
		Document: doc,
		Metadata: md,
	}
	if err := evt.Validate(); err != nil {
		return Event{}, err
	}
	return evt, nil
}

func parseUUID(field, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, errspkg.NewValidationError(field, "is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &errspkg.ValidationError{Field: field, Reason: "is not a UUID", Cause: err}
	}
	return id, nil
}
