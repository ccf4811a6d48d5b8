package reference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	"github.com/drblury/docflow/internal/runtime/jsoncodec"
	"github.com/drblury/docflow/internal/runtime/pointer"
)

// Resolver turns references into bytes. It holds no per-event state and is
// safe for concurrent use.
type Resolver struct {
	store    pointer.Store
	fetchers map[string]Fetcher
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFetcher registers f for scheme, replacing any default.
func WithFetcher(scheme string, f Fetcher) Option {
	return func(r *Resolver) {
		r.fetchers[scheme] = f
	}
}

// WithHTTPClient uses client for http and https locators.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		f := HTTPFetcher(client)
		r.fetchers["http"] = f
		r.fetchers["https"] = f
	}
}

// WithS3 enables s3:// locators.
func WithS3(client pointer.S3API) Option {
	return func(r *Resolver) {
		r.fetchers["s3"] = S3Fetcher(client)
	}
}

// NewResolver returns a resolver bound to store. cache, data and http(s)
// locators are supported out of the box. Locators come from event producers,
// so reading the local filesystem is opt-in:
//
//	NewResolver(store, WithFetcher("file", FileFetcher()))
func NewResolver(store pointer.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		fetchers: make(map[string]Fetcher),
	}
	r.fetchers["data"] = DataFetcher()
	httpFetcher := HTTPFetcher(nil)
	r.fetchers["http"] = httpFetcher
	r.fetchers["https"] = httpFetcher
	if store != nil {
		r.fetchers[pointer.Scheme] = StoreFetcher(store)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the pointer store the resolver is bound to.
func (r *Resolver) Store() pointer.Store { return r.store }

// Resolve returns the bytes behind ref, reading attributes from evt. evt is
// never modified. Missing attributes, pointers and objects fail with a
// *errors.ResolutionError; infrastructure failures are returned as is.
func (r *Resolver) Resolve(ctx context.Context, ref Reference, evt event.Event) ([]byte, error) {
	switch ref.kind {
	case KindValue:
		return literalBytes(ref.value), nil
	case KindAttribute:
		v, ok := event.Lookup(evt, ref.target)
		if !ok {
			return nil, &errspkg.ResolutionError{Reference: ref.String(), Cause: ErrAttributeNotFound}
		}
		return literalBytes(v), nil
	case KindPointer, KindURL:
		return r.fetch(ctx, ref)
	default:
		return nil, &errspkg.ResolutionError{Reference: ref.String(), Cause: errors.New("empty reference")}
	}
}

// ResolveString is Resolve returning a string.
func (r *Resolver) ResolveString(ctx context.Context, ref Reference, evt event.Event) (string, error) {
	data, err := r.Resolve(ctx, ref, evt)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ResolveJSON resolves ref and decodes it as JSON into out.
func (r *Resolver) ResolveJSON(ctx context.Context, ref Reference, evt event.Event, out any) error {
	data, err := r.Resolve(ctx, ref, evt)
	if err != nil {
		return err
	}
	if err := jsoncodec.Unmarshal(data, out); err != nil {
		return errspkg.Fatal(fmt.Errorf("decode %s: %w", ref, err))
	}
	return nil
}

// DocumentData reads the document evt describes.
func (r *Resolver) DocumentData(ctx context.Context, evt event.Event) ([]byte, error) {
	return r.Resolve(ctx, URL(evt.Document.URL), evt)
}

func (r *Resolver) fetch(ctx context.Context, ref Reference) ([]byte, error) {
	if ref.kind == KindPointer && r.store == nil {
		return nil, &errspkg.ResolutionError{Reference: ref.String(), Cause: errspkg.ErrStoreRequired}
	}
	scheme := Scheme(ref.target)
	fetcher, ok := r.fetchers[scheme]
	if !ok {
		return nil, &errspkg.ResolutionError{Reference: ref.String(), Cause: fmt.Errorf("%w %q", ErrUnsupportedScheme, scheme)}
	}

	data, err := fetcher.Fetch(ctx, ref.target)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, pointer.ErrInvalidPointer):
		return nil, &errspkg.ResolutionError{Reference: ref.String(), Cause: err}
	default:
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
}

// Lazy defers resolution until Get is first called. A successful result is
// cached; failures are not, so a transient error can be retried.
type Lazy struct {
	resolver *Resolver
	ref      Reference
	evt      event.Event

	mu       sync.Mutex
	resolved bool
	data     []byte
}

// Lazy returns a handle that resolves ref against evt on first use.
func (r *Resolver) Lazy(ref Reference, evt event.Event) *Lazy {
	return &Lazy{resolver: r, ref: ref, evt: evt}
}

// Get resolves the reference, or returns the cached bytes.
func (l *Lazy) Get(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolved {
		return l.data, nil
	}
	data, err := l.resolver.Resolve(ctx, l.ref, l.evt)
	if err != nil {
		return nil, err
	}
	l.data = data
	l.resolved = true
	return data, nil
}

// String resolves the reference as a string.
func (l *Lazy) String(ctx context.Context) (string, error) {
	data, err := l.Get(ctx)
	return string(data), err
}

// Resolved reports whether the value has been fetched.
func (l *Lazy) Resolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolved
}
