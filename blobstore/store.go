// Package blobstore provides storage abstraction for linkgo's persisted
// artifacts: trained weights documents and spilled pair files.
//
// Artifacts are write-once and read sequentially, so the interface is
// stream-oriented rather than random-access. Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem with atomic writes
//   - CachingStore: read-through local cache in front of a remote store
//   - s3.Store: Amazon S3 with managed parallel uploads
//   - minio.Store: MinIO and other S3-compatible object stores
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction for reading and writing immutable artifacts.
type Store interface {
	// Open opens a blob for sequential reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create opens a blob for streaming writes. The blob becomes visible
	// only when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WritableBlob is a streaming write handle returned by Store.Create.
type WritableBlob interface {
	io.Writer
	// Close finalizes the blob. A blob is durable only after Close.
	io.Closer
	// Sync flushes buffered data where the backend supports it.
	Sync() error
}

// ReadAll reads a whole blob into memory.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	r, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}
