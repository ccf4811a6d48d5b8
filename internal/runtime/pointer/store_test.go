package pointer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every provider must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("put then get returns identical bytes", func(t *testing.T) {
		payload := bytes.Repeat([]byte("embedding-vector;"), 512)
		p, err := store.Put(ctx, "vectors", payload)
		require.NoError(t, err)
		assert.True(t, IsPointer(p.String()))

		first, err := store.Get(ctx, p)
		require.NoError(t, err)
		second, err := store.Get(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, payload, first)
		assert.Equal(t, first, second)
	})

	t.Run("pointers are unique per put", func(t *testing.T) {
		a, err := store.Put(ctx, "text", []byte("same"))
		require.NoError(t, err)
		b, err := store.Put(ctx, "text", []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty payload", func(t *testing.T) {
		p, err := store.Put(ctx, "text", nil)
		require.NoError(t, err)
		data, err := store.Get(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		p, err := store.Put(ctx, "text", []byte("bye"))
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, p))
		require.NoError(t, store.Delete(ctx, p))

		_, err = store.Get(ctx, p)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown pointer", func(t *testing.T) {
		_, err := store.Get(ctx, newPointer("text", "01HZZZZZZZZZZZZZZZZZZZZZZZ"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := store.Put(ctx, "bad/namespace", []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidNamespace)
		_, err = store.Get(ctx, Pointer("s3://bucket/key"))
		assert.ErrorIs(t, err, ErrInvalidPointer)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	runStoreContract(t, store)

	p, err := store.Put(context.Background(), "text", []byte("abc"))
	require.NoError(t, err)
	data, err := store.Get(context.Background(), p)
	require.NoError(t, err)
	data[0] = 'z'
	again, err := store.Get(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again, "returned slices must not alias stored bytes")

	require.NoError(t, store.Close())
	_, err = store.Put(context.Background(), "text", []byte("late"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := store.Put(ctx, "text", []byte("x"))
			if assert.NoError(t, err) {
				_, err = store.Get(ctx, p)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, store.Len())
}

func TestMemoryStoreHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Put(ctx, "text", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runStoreContract(t, store)
}

func TestSQLiteStoreSharedFile(t *testing.T) {
	path := t.TempDir() + "/pointers.db"
	writer, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	reader, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	p, err := writer.Put(context.Background(), "images", []byte("png-bytes"))
	require.NoError(t, err)

	data, err := reader.Get(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	require.NoError(t, writer.Close())
	_, err = writer.Get(context.Background(), p)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DOCFLOW_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("DOCFLOW_TEST_POSTGRES_URL not set")
	}
	store, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runStoreContract(t, store)
}

func TestPostgresStoreRequiresURL(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "")
	assert.Error(t, err)
}

func TestNATSStore(t *testing.T) {
	runStoreContract(t, &NATSStore{obs: newFakeObjectStore()})
}

func TestNATSStoreLive(t *testing.T) {
	url := os.Getenv("DOCFLOW_TEST_NATS_URL")
	if url == "" {
		t.Skip("DOCFLOW_TEST_NATS_URL not set")
	}
	store, err := NewNATSStore(url, "DOCFLOW_TEST")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runStoreContract(t, store)
}

func TestS3Store(t *testing.T) {
	client := newFakeS3()
	store, err := NewS3Store(client, "pipeline-cache", "pointers")
	require.NoError(t, err)

	runStoreContract(t, store)

	p, err := store.Put(context.Background(), "text", []byte("hello"))
	require.NoError(t, err)
	_, _, err = split(p)
	require.NoError(t, err)
	for key := range client.objects {
		assert.Regexp(t, `^pointers/(text|vectors)/[0-9A-Z]{26}$`, key)
	}
}

func TestS3StoreValidation(t *testing.T) {
	_, err := NewS3Store(nil, "bucket", "")
	assert.Error(t, err)
	_, err = NewS3Store(newFakeS3(), "", "")
	assert.Error(t, err)
}

func TestS3StoreSurfacesInfrastructureErrors(t *testing.T) {
	client := newFakeS3()
	client.failWith = errors.New("throttled")
	store, err := NewS3Store(client, "bucket", "")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "text", []byte("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestParsePointer(t *testing.T) {
	p := newPointer("docflow", "01HZX3Q3QK6Y2ZV5N8J1W2T3R4")
	parsed, err := Parse(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, parsed)

	for _, bad := range []string{"", "cache://", "cache://ns", "cache://ns/", "cache://ns/a/b", "s3://ns/key", "cache://bad ns/key"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidPointer, bad)
	}
}

func TestIsS3NotFound(t *testing.T) {
	assert.True(t, IsS3NotFound(&types.NoSuchKey{}))
	assert.True(t, IsS3NotFound(&types.NotFound{}))
	assert.False(t, IsS3NotFound(errors.New("boom")))
	assert.False(t, IsS3NotFound(nil))
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) PutBytes(name string, data []byte, opts ...nats.ObjectOpt) (*nats.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = append([]byte(nil), data...)
	return &nats.ObjectInfo{}, nil
}

func (f *fakeObjectStore) GetBytes(name string, opts ...nats.GetObjectOpt) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	if !ok {
		return nil, nats.ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeObjectStore) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[name]; !ok {
		return nats.ErrObjectNotFound
	}
	delete(f.objects, name)
	return nil
}

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failWith error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}
