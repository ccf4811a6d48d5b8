package pointer

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	idspkg "github.com/drblury/docflow/internal/runtime/ids"
)

// DefaultNATSBucket is the object store bucket used when none is configured.
const DefaultNATSBucket = "DOCFLOW_POINTERS"

// objectStore is the subset of nats.ObjectStore used by NATSStore.
type objectStore interface {
	PutBytes(name string, data []byte, opts ...nats.ObjectOpt) (*nats.ObjectInfo, error)
	GetBytes(name string, opts ...nats.GetObjectOpt) ([]byte, error)
	Delete(name string) error
}

// NATSStore keeps blobs in a JetStream object store bucket.
type NATSStore struct {
	nc  *nats.Conn
	obs objectStore
}

// NewNATSStore connects to url and binds (or creates) bucket.
func NewNATSStore(url, bucket string) (*NATSStore, error) {
	if bucket == "" {
		bucket = DefaultNATSBucket
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	obs, err := js.ObjectStore(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) || errors.Is(err, nats.ErrStreamNotFound) {
		obs, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "docflow pointer store",
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to bind object store %q: %w", bucket, err)
	}

	return &NATSStore{nc: nc, obs: obs}, nil
}

func objectName(namespace, key string) string {
	return namespace + "/" + key
}

func (s *NATSStore) Put(ctx context.Context, namespace string, data []byte) (Pointer, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return "", err
	}
	key := idspkg.NewKey()
	if _, err := s.obs.PutBytes(objectName(namespace, key), data, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return newPointer(namespace, key), nil
}

func (s *NATSStore) Get(ctx context.Context, p Pointer) ([]byte, error) {
	namespace, key, err := split(p)
	if err != nil {
		return nil, err
	}
	data, err := s.obs.GetBytes(objectName(namespace, key), nats.Context(ctx))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *NATSStore) Delete(ctx context.Context, p Pointer) error {
	namespace, key, err := split(p)
	if err != nil {
		return err
	}
	if err := s.obs.Delete(objectName(namespace, key)); err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *NATSStore) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
