package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

var (
	// ErrNoSource means a track has no backing bytes (missing locator or
	// missing object). The gateway turns this into a not-found response.
	ErrNoSource = errors.New("no audio source for track")

	// ErrStoreUnavailable means the backing store is unreachable or not
	// configured. Never propagated raw to clients.
	ErrStoreUnavailable = errors.New("audio store unavailable")
)

// ObjectStore is the byte-level interface over the chunked audio store.
// Reads are non-mutating, so concurrent requests need no coordination.
type ObjectStore interface {
	// ObjectLength returns the size in bytes of the stored object.
	ObjectLength(ctx context.Context, key string) (int64, error)
	// OpenRange opens a reader over bytes [start, end] inclusive.
	OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
	// Open opens a reader over the whole object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// minioObjectStore implements ObjectStore on a MinIO bucket.
type minioObjectStore struct {
	client *minio.Client
	bucket string
}

// NewMinioObjectStore wraps an initialized MinIO client as an ObjectStore.
func NewMinioObjectStore(client *minio.Client, bucket string) ObjectStore {
	return &minioObjectStore{client: client, bucket: bucket}
}

func (s *minioObjectStore) ObjectLength(ctx context.Context, key string) (int64, error) {
	if s.client == nil {
		return 0, ErrStoreUnavailable
	}
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return 0, fmt.Errorf("%w: %s", ErrNoSource, key)
		}
		return 0, fmt.Errorf("%w: stat %s: %v", ErrStoreUnavailable, key, err)
	}
	return info.Size, nil
}

func (s *minioObjectStore) OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	if s.client == nil {
		return nil, ErrStoreUnavailable
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, fmt.Errorf("invalid range %d-%d: %w", start, end, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, key, err)
	}
	return obj, nil
}

func (s *minioObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.client == nil {
		return nil, ErrStoreUnavailable
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, key, err)
	}
	return obj, nil
}
