package pointer

import (
	"context"
	"sync"

	idspkg "github.com/drblury/docflow/internal/runtime/ids"
)

// MemoryStore keeps blobs in process memory. It is shared by every caller in
// the process, which makes it suitable for tests and single-process pipelines.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[Pointer][]byte
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[Pointer][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, namespace string, data []byte) (Pointer, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := newPointer(namespace, idspkg.NewKey())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	s.blobs[p] = append([]byte(nil), data...)
	return p, nil
}

func (s *MemoryStore) Get(ctx context.Context, p Pointer) ([]byte, error) {
	if _, _, err := split(p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	data, ok := s.blobs[p]
	if !ok {
		return nil, notFound(p)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, p Pointer) error {
	if _, _, err := split(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.blobs, p)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.blobs = nil
	return nil
}
