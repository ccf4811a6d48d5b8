package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	"github.com/drblury/docflow/internal/runtime/pointer"
	"github.com/drblury/docflow/internal/runtime/reference"
)

func newTestInvocation(evt event.Event, settings map[string]reference.Reference) Invocation {
	store := pointer.NewMemoryStore()
	return Invocation{
		Event:      evt,
		Middleware: "unit-test",
		Resolver:   reference.NewResolver(store),
		Store:      store,
		Logger:     loggingpkg.Discard(),
		settings:   settings,
	}
}

func TestNextDerivesIdentity(t *testing.T) {
	in := textEvent("hello", "text/plain")
	in.Metadata = event.Metadata{"source": "upload"}
	inv := newTestInvocation(in, nil)

	unit := Next(func(context.Context, Invocation) (event.Event, error) {
		// Identity fields set by the unit are ignored.
		return event.Event{ChainID: in.ID, Sequence: 99}, nil
	})
	outputs, err := unit.Process(context.Background(), inv)
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	out := outputs[0]
	assert.NotEqual(t, in.ID, out.ID)
	assert.Equal(t, in.ChainID, out.ChainID)
	assert.Equal(t, in.Sequence+1, out.Sequence)
	assert.Equal(t, event.DocumentCreated, out.Type)
	assert.Equal(t, in.Document, out.Document)
	assert.True(t, in.Precedes(out))
	require.NoError(t, out.Validate())
}

func TestNextReplacesDocumentAndMetadata(t *testing.T) {
	in := textEvent("hello", "text/plain")
	inv := newTestInvocation(in, nil)

	patch := event.KindPatch(event.KindText, map[string]any{"words": 1})
	unit := Next(func(ctx context.Context, inv Invocation) (event.Event, error) {
		doc, err := inv.StoreDocument(ctx, "text/plain", []byte("HELLO"))
		if err != nil {
			return event.Event{}, err
		}
		return event.Event{Type: event.DocumentUpdated, Document: doc}.WithMetadata(patch), nil
	})
	outputs, err := unit.Process(context.Background(), inv)
	require.NoError(t, err)

	out := outputs[0]
	assert.Equal(t, event.DocumentUpdated, out.Type)
	assert.True(t, pointer.IsPointer(out.Document.URL))
	assert.Equal(t, int64(5), out.Document.Size)
	assert.Equal(t, event.KindText, out.Metadata.Kind())
	assert.Equal(t, map[string]any{"words": 1}, out.Metadata.Attrs())

	data, err := inv.Resolver.DocumentData(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(data))
}

func TestNextPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	unit := Next(func(context.Context, Invocation) (event.Event, error) {
		return event.Event{}, boom
	})
	outputs, err := unit.Process(context.Background(), newTestInvocation(textEvent("x", "text/plain"), nil))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, outputs)
}

func TestInvocationSettingIsLazy(t *testing.T) {
	var fetched int
	store := pointer.NewMemoryStore()
	resolver := reference.NewResolver(store, reference.WithFetcher("test", reference.FetcherFunc(
		func(context.Context, string) ([]byte, error) {
			fetched++
			return []byte("remote"), nil
		},
	)))
	inv := Invocation{
		Event:    textEvent("x", "text/plain"),
		Resolver: resolver,
		Store:    store,
		settings: map[string]reference.Reference{"remote": reference.URL("test://value")},
	}

	lazy := inv.Setting("remote")
	assert.Zero(t, fetched)
	assert.False(t, lazy.Resolved())

	for range 2 {
		v, err := lazy.String(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "remote", v)
	}
	assert.Equal(t, 1, fetched)
}

func TestInvocationDocument(t *testing.T) {
	inv := newTestInvocation(textEvent("payload", "text/plain"), nil)
	data, err := inv.Document(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

type failingBind struct{ UnitFunc }

func (failingBind) Bind(Resources) error { return errors.New("missing credentials") }

func TestBindUnit(t *testing.T) {
	noop := UnitFunc(func(context.Context, Invocation) ([]event.Event, error) { return nil, nil })
	assert.NoError(t, bindUnit(noop, Resources{}))

	err := bindUnit(failingBind{noop}, Resources{})
	assert.True(t, errspkg.IsFatal(err))
	assert.ErrorContains(t, err, "missing credentials")
}
