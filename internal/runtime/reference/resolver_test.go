package reference

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	"github.com/drblury/docflow/internal/runtime/pointer"
)

func testEvent() event.Event {
	evt := event.New(event.DocumentCreated, event.Document{URL: "s3://docs/report.txt", Type: "text/plain", Size: 5})
	return evt.WithMetadata(event.KindPatch(event.KindText, map[string]any{
		"language": "en",
		"pages":    3.0,
	}))
}

func TestResolveValueNeverFails(t *testing.T) {
	r := NewResolver(nil)
	for _, literal := range []any{"hello", []byte{0, 1}, 12.5, map[string]any{"a": true}, nil} {
		_, err := r.Resolve(context.Background(), Value(literal), testEvent())
		assert.NoError(t, err)
	}
	got, err := r.ResolveString(context.Background(), Value("hello"), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestResolveAttribute(t *testing.T) {
	r := NewResolver(nil)
	evt := testEvent()
	before := evt.Clone()

	lang, err := r.ResolveString(context.Background(), Attribute("metadata.properties.attrs.language"), evt)
	require.NoError(t, err)
	assert.Equal(t, "en", lang)

	pages, err := r.ResolveString(context.Background(), Attribute("metadata.properties.attrs.pages"), evt)
	require.NoError(t, err)
	assert.Equal(t, "3", pages)

	assert.Equal(t, before, evt, "resolution must not mutate the event")
}

func TestResolveAbsentAttributeIsResolutionError(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), Attribute("metadata.properties.attrs.missing"), testEvent())

	var rerr *errspkg.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, ErrAttributeNotFound)
	assert.True(t, errspkg.IsFatal(err))
}

func TestResolvePointer(t *testing.T) {
	store := pointer.NewMemoryStore()
	r := NewResolver(store)
	ctx := context.Background()

	p, err := store.Put(ctx, "text", []byte("large payload"))
	require.NoError(t, err)

	data, err := r.Resolve(ctx, Pointer(p), testEvent())
	require.NoError(t, err)
	assert.Equal(t, []byte("large payload"), data)

	require.NoError(t, store.Delete(ctx, p))
	_, err = r.Resolve(ctx, Pointer(p), testEvent())
	var rerr *errspkg.ResolutionError
	assert.ErrorAs(t, err, &rerr)
	assert.True(t, errspkg.IsFatal(err))
}

func TestResolvePointerWithoutStore(t *testing.T) {
	_, err := NewResolver(nil).Resolve(context.Background(), Pointer("cache://docflow/01HZX3Q3QK6Y2ZV5N8J1W2T3R4"), testEvent())
	assert.ErrorIs(t, err, errspkg.ErrStoreRequired)
	assert.True(t, errspkg.IsFatal(err))
}

func TestResolveUnsupportedScheme(t *testing.T) {
	_, err := NewResolver(nil).Resolve(context.Background(), URL("gs://bucket/key"), testEvent())
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
	assert.True(t, errspkg.IsFatal(err))
}

func TestResolveDataURI(t *testing.T) {
	r := NewResolver(nil)
	ctx := context.Background()

	got, err := r.ResolveString(ctx, URL(EncodeDataURI("text/plain", []byte("inline doc"))), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "inline doc", got)

	got, err = r.ResolveString(ctx, URL("data:,hello%20world"), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)

	_, err = r.Resolve(ctx, URL("data:text/plain;base64"), testEvent())
	assert.True(t, errspkg.IsFatal(err))
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("from disk"), 0o600))

	r := NewResolver(nil, WithFetcher("file", FileFetcher()))
	got, err := r.ResolveString(context.Background(), URL("file://"+path), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "from disk", got)

	_, err = r.Resolve(context.Background(), URL("file://"+filepath.Join(dir, "missing.txt")), testEvent())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errspkg.IsFatal(err))
}

func TestFileLocatorsRejectedByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("do not read"), 0o600))

	evt := testEvent().WithDocument(event.Document{URL: "file://" + path, Type: "text/plain", Size: 11})
	data, err := NewResolver(pointer.NewMemoryStore()).DocumentData(context.Background(), evt)
	require.Error(t, err)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
	assert.True(t, errspkg.IsFatal(err))
}

func TestResolveHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc":
			_, _ = w.Write([]byte("remote doc"))
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	t.Cleanup(srv.Close)

	r := NewResolver(nil, WithHTTPClient(srv.Client()))
	ctx := context.Background()

	got, err := r.ResolveString(ctx, URL(srv.URL+"/doc"), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "remote doc", got)

	_, err = r.Resolve(ctx, URL(srv.URL+"/gone"), testEvent())
	assert.True(t, errspkg.IsFatal(err))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(ctx, URL(srv.URL+"/busy"), testEvent())
	assert.True(t, errspkg.IsTransient(err))

	_, err = r.Resolve(ctx, URL(srv.URL+"/private"), testEvent())
	assert.True(t, errspkg.IsFatal(err))
}

func TestResolveS3AndDocumentData(t *testing.T) {
	client := &stubS3{objects: map[string][]byte{"docs/report.txt": []byte("hello")}}
	r := NewResolver(nil, WithS3(client))

	data, err := r.DocumentData(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = r.Resolve(context.Background(), URL("s3://docs/missing.txt"), testEvent())
	assert.ErrorIs(t, err, ErrNotFound)

	client.failWith = errors.New("SlowDown")
	_, err = r.Resolve(context.Background(), URL("s3://docs/report.txt"), testEvent())
	assert.True(t, errspkg.IsTransient(err))
}

func TestResolveJSON(t *testing.T) {
	r := NewResolver(nil)
	var out struct {
		Model string `json:"model"`
	}
	require.NoError(t, r.ResolveJSON(context.Background(), Value(`{"model":"titan"}`), testEvent(), &out))
	assert.Equal(t, "titan", out.Model)

	err := r.ResolveJSON(context.Background(), Value("not json"), testEvent(), &out)
	assert.True(t, errspkg.IsFatal(err))
}

func TestLazyResolvesOnFirstUseOnly(t *testing.T) {
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, locator string) ([]byte, error) {
		calls.Add(1)
		return []byte("fetched"), nil
	})
	r := NewResolver(nil, WithFetcher("mem", fetcher))

	lazy := r.Lazy(URL("mem://thing"), testEvent())
	assert.False(t, lazy.Resolved())
	assert.Equal(t, int32(0), calls.Load(), "creating a handle must not resolve")

	for i := 0; i < 3; i++ {
		got, err := lazy.String(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "fetched", got)
	}
	assert.True(t, lazy.Resolved())
	assert.Equal(t, int32(1), calls.Load())
}

func TestLazyRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, locator string) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("timeout")
		}
		return []byte("ok"), nil
	})
	lazy := NewResolver(nil, WithFetcher("mem", fetcher)).Lazy(URL("mem://x"), testEvent())

	_, err := lazy.Get(context.Background())
	require.Error(t, err)
	got, err := lazy.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), got)
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://docs/a/b%20c.txt")
	require.NoError(t, err)
	assert.Equal(t, "docs", bucket)
	assert.Equal(t, "a/b c.txt", key)

	for _, bad := range []string{"s3://bucket", "s3:///key", "https://bucket/key"} {
		_, _, err := ParseS3URL(bad)
		assert.Error(t, err, bad)
	}
}

type stubS3 struct {
	objects  map[string][]byte
	failWith error
}

func (s *stubS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return nil, errors.New("read only")
}

func (s *stubS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	data, ok := s.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (s *stubS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}
