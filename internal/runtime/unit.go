package runtime

import (
	"context"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	"github.com/drblury/docflow/internal/runtime/pointer"
	"github.com/drblury/docflow/internal/runtime/reference"
)

// ComputeUnit is the user code run for every event a middleware accepts.
// Returned events are published on the middleware's output topic.
type ComputeUnit interface {
	Process(ctx context.Context, inv Invocation) ([]event.Event, error)
}

// UnitFunc adapts a plain function to ComputeUnit.
type UnitFunc func(ctx context.Context, inv Invocation) ([]event.Event, error)

// Process implements ComputeUnit.
func (f UnitFunc) Process(ctx context.Context, inv Invocation) ([]event.Event, error) {
	return f(ctx, inv)
}

// Invocation is everything a unit gets for one item.
type Invocation struct {
	Event      event.Event
	Middleware string
	Resolver   *reference.Resolver
	Store      pointer.Store
	Logger     loggingpkg.ServiceLogger

	settings map[string]reference.Reference
}

// Setting returns a lazy handle on a configured setting. Nothing is fetched
// until the handle is read.
func (inv Invocation) Setting(name string) *reference.Lazy {
	return inv.Resolver.Lazy(inv.settings[name], inv.Event)
}

// Document loads the content of the event's document.
func (inv Invocation) Document(ctx context.Context) ([]byte, error) {
	return inv.Resolver.DocumentData(ctx, inv.Event)
}

// StoreDocument writes data into the pointer store under the middleware's
// namespace and returns a document describing it.
func (inv Invocation) StoreDocument(ctx context.Context, mimeType string, data []byte) (event.Document, error) {
	return reference.StoreDocument(ctx, inv.Store, inv.Middleware, mimeType, data)
}

// Derive starts the next event of the invocation's chain.
func (inv Invocation) Derive(typ event.Type) event.Event {
	return event.Derive(inv.Event, typ)
}

// Next wraps fn into a unit emitting exactly one event as the next step of
// the chain. Identity fields (id, chain, sequence, time) are always derived
// from the incoming event; fn only decides type, document and metadata.
// A zero document keeps the incoming one.
func Next(fn func(ctx context.Context, inv Invocation) (event.Event, error)) ComputeUnit {
	return UnitFunc(func(ctx context.Context, inv Invocation) ([]event.Event, error) {
		out, err := fn(ctx, inv)
		if err != nil {
			return nil, err
		}
		typ := out.Type
		if typ == "" {
			typ = event.DocumentCreated
		}
		next := inv.Derive(typ)
		if out.Document != (event.Document{}) {
			next.Document = out.Document
		}
		if out.Metadata != nil {
			next.Metadata = out.Metadata.Clone()
		}
		return []event.Event{next}, nil
	})
}

// Resources are granted to Bindable units when their middleware is
// registered.
type Resources struct {
	Store     pointer.Store
	Resolver  *reference.Resolver
	Publisher *Publisher
	Logger    loggingpkg.ServiceLogger
}

// Bindable is implemented by units needing long-lived resources.
type Bindable interface {
	Bind(res Resources) error
}

func bindUnit(unit ComputeUnit, res Resources) error {
	b, ok := unit.(Bindable)
	if !ok {
		return nil
	}
	if err := b.Bind(res); err != nil {
		return errspkg.Fatal(err)
	}
	return nil
}
