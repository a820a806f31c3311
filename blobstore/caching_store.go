package blobstore

import (
	"context"
	"errors"
	"io"
)

// CachingStore is a read-through cache in front of a remote Store. Opens
// are served from the local store when present; a miss fetches the whole
// blob from the remote store and caches it before serving. Writes and
// deletes go to the remote store and invalidate the cached copy.
//
// The cache assumes blobs are immutable once written, which holds for
// weights documents and pair files addressed by distinct names.
type CachingStore struct {
	remote Store
	local  Store
}

// NewCachingStore creates a CachingStore. local is typically a LocalStore
// on fast disk; any Store works.
func NewCachingStore(remote, local Store) *CachingStore {
	return &CachingStore{remote: remote, local: local}
}

// Open serves the blob from the local cache, fetching it from the remote
// store first when absent.
func (s *CachingStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.local.Open(ctx, name)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := s.fill(ctx, name); err != nil {
		return nil, err
	}
	return s.local.Open(ctx, name)
}

func (s *CachingStore) fill(ctx context.Context, name string) error {
	src, err := s.remote.Open(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := s.local.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = s.local.Delete(ctx, name)
		return err
	}
	return dst.Close()
}

// Create streams to the remote store. The cache is not write-through: the
// blob lands locally on first read instead.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	if err := s.local.Delete(ctx, name); err != nil {
		return nil, err
	}
	return s.remote.Create(ctx, name)
}

// Put writes to the remote store and drops any cached copy.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.local.Delete(ctx, name); err != nil {
		return err
	}
	return s.remote.Put(ctx, name, data)
}

// Delete removes the blob from both stores.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	if err := s.local.Delete(ctx, name); err != nil {
		return err
	}
	return s.remote.Delete(ctx, name)
}

// List lists the remote store; the cache holds a subset by construction.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.remote.List(ctx, prefix)
}
