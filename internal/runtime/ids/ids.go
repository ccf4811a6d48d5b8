package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewKey returns a time-sortable ULID used as a pointer store key.
func NewKey() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// IsKey reports whether s is a well-formed pointer key.
func IsKey(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// NewEventID returns a random event identifier.
func NewEventID() uuid.UUID {
	return uuid.New()
}

// NewChainID starts a new processing chain.
func NewChainID() uuid.UUID {
	return uuid.New()
}
