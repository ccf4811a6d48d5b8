// Package pointer implements the Pointer Store: a content-opaque blob store
// addressed by cache:// pointers. Providers share one contract: a Put is
// visible to every later Get from any process sharing the provider, and two
// Gets of the same pointer return identical bytes.
package pointer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Scheme prefixes every pointer.
const Scheme = "cache"

const prefix = Scheme + "://"

var (
	// ErrNotFound is returned by Get when the pointer was deleted or evicted.
	ErrNotFound = errors.New("docflow: pointer not found")
	// ErrInvalidPointer is returned for strings that are not pointers.
	ErrInvalidPointer = errors.New("docflow: invalid pointer")
	// ErrInvalidNamespace is returned by Put for unusable namespaces.
	ErrInvalidNamespace = errors.New("docflow: invalid pointer namespace")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("docflow: pointer store is closed")
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// Pointer is an opaque handle to bytes held in a Store.
type Pointer string

func (p Pointer) String() string { return string(p) }

// Store is the contract every provider implements.
type Store interface {
	// Put stores data under namespace and returns a fresh pointer.
	Put(ctx context.Context, namespace string, data []byte) (Pointer, error)
	// Get returns the bytes behind p, or an error wrapping ErrNotFound.
	Get(ctx context.Context, p Pointer) ([]byte, error)
	// Delete removes p. Deleting a missing pointer is not an error.
	Delete(ctx context.Context, p Pointer) error
	Close() error
}

// Parse validates s and returns it as a Pointer.
func Parse(s string) (Pointer, error) {
	if _, _, err := split(Pointer(s)); err != nil {
		return "", err
	}
	return Pointer(s), nil
}

// IsPointer reports whether s uses the pointer scheme.
func IsPointer(s string) bool {
	return strings.HasPrefix(s, prefix)
}

// ValidateNamespace checks that ns can be used with Put.
func ValidateNamespace(ns string) error {
	if !namespacePattern.MatchString(ns) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	return nil
}

func newPointer(namespace, key string) Pointer {
	return Pointer(prefix + namespace + "/" + key)
}

// split is only used by providers; callers treat pointers as opaque.
func split(p Pointer) (namespace, key string, err error) {
	rest, ok := strings.CutPrefix(string(p), prefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPointer, string(p))
	}
	namespace, key, ok = strings.Cut(rest, "/")
	if !ok || key == "" || strings.Contains(key, "/") || ValidateNamespace(namespace) != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPointer, string(p))
	}
	return namespace, key, nil
}

func notFound(p Pointer) error {
	return fmt.Errorf("%w: %s", ErrNotFound, p)
}
