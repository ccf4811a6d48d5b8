package headers

import (
	"strconv"
	"time"
)

// Keys set on every published event.
const (
	EventType = "docflow_event_type"
	ChainID   = "docflow_chain_id"
	Sequence  = "docflow_sequence"
	EventID   = "docflow_event_id"
)

// Keys set on dead-lettered messages.
const (
	Error         = "docflow_error"
	OriginalTopic = "docflow_original_topic"
	Middleware    = "docflow_middleware"
	FailedAt      = "docflow_failed_at"
	ReceiveCount  = "docflow_receive_count"
)

// Headers represents the transport headers carried alongside an event.
type Headers map[string]string

func (h Headers) cloneWithExtra(extra int) Headers {
	size := len(h) + extra
	if size <= 0 {
		return Headers{}
	}

	cloned := make(Headers, size)
	for k, v := range h {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the headers.
func (h Headers) Clone() Headers {
	return h.cloneWithExtra(0)
}

// With returns a copy containing the provided key/value pair.
func (h Headers) With(key, value string) Headers {
	cloned := h.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a copy containing the supplied entries.
func (h Headers) WithAll(entries Headers) Headers {
	cloned := h.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// Int reads an integer header. Missing or malformed values return fallback.
func (h Headers) Int(key string, fallback int) int {
	raw, ok := h[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// WithInt returns a copy with key set to n.
func (h Headers) WithInt(key string, n int) Headers {
	return h.With(key, strconv.Itoa(n))
}

// WithTime returns a copy with key set to t in RFC3339 (UTC, millisecond precision).
func (h Headers) WithTime(key string, t time.Time) Headers {
	return h.With(key, t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// New constructs Headers from alternating key/value pairs.
func New(pairs ...string) Headers {
	h := make(Headers, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		h[pairs[i]] = pairs[i+1]
	}
	return h
}
