// Package s3 implements blobstore.Store on Amazon S3.
//
// Reads stream object bodies; writes stream through the SDK's managed
// multipart uploader, so large pair files never buffer fully in memory.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/linkgo/blobstore"
)

// UploadConfig configures the managed multipart uploader.
type UploadConfig struct {
	// PartSize is the part size for multipart uploads. Default: 8MB.
	PartSize int64
	// Concurrency is the number of concurrent part uploads. Default: 5.
	Concurrency int
	// EnableChecksum enables CRC32C integrity validation on upload.
	// Default: true.
	EnableChecksum bool
}

// DefaultUploadConfig returns production defaults.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:       8 * 1024 * 1024,
		Concurrency:    5,
		EnableChecksum: true,
	}
}

// Store implements blobstore.Store for S3.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	upload UploadConfig
}

// NewStore creates an S3 blob store.
// rootPrefix is prepended to all keys (e.g. "linkage/acme/").
func NewStore(client *s3.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		upload: DefaultUploadConfig(),
	}
}

// NewStoreFromEnv creates an S3 blob store using the default AWS credential
// and region chain (env vars, shared config, instance roles).
func NewStoreFromEnv(ctx context.Context, bucket, rootPrefix string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

// WithUploadConfig overrides the multipart upload settings.
func (s *Store) WithUploadConfig(cfg UploadConfig) *Store {
	s.upload = cfg
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *Store) uploader() *manager.Uploader {
	return manager.NewUploader(s.client, func(u *manager.Uploader) {
		if s.upload.PartSize > 0 {
			u.PartSize = s.upload.PartSize
		}
		if s.upload.Concurrency > 0 {
			u.Concurrency = s.upload.Concurrency
		}
	})
}

func (s *Store) putInput(key string, body io.Reader) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if s.upload.EnableChecksum {
		in.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	return in
}

// Open opens a blob for sequential reading.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, blobstore.ErrNotFound
		}
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	return resp.Body, nil
}

// Create opens a blob for streaming writes backed by a multipart upload.
// The object is finalized when Close returns nil.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	pr, pw := io.Pipe()

	blob := &s3WritableBlob{
		pw:   pw,
		done: make(chan error, 1),
	}

	up := s.uploader()
	go func() {
		_, err := up.Upload(ctx, s.putInput(s.key(name), pr))
		_ = pr.CloseWithError(err)
		blob.done <- err
	}()

	return blob, nil
}

// Put writes a blob in one shot.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.uploader().Upload(ctx, s.putInput(s.key(name), bytes.NewReader(data)))
	return err
}

// Delete removes a blob. S3 deletes are idempotent.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

// List returns all blob names with the given prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)
	var names []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(strings.TrimPrefix(*obj.Key, s.prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// s3WritableBlob implements blobstore.WritableBlob over a pipe feeding the
// background uploader.
type s3WritableBlob struct {
	pw     *io.PipeWriter
	done   chan error
	closed atomic.Bool
}

func (b *s3WritableBlob) Write(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return b.pw.Write(p)
}

func (b *s3WritableBlob) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	if err := b.pw.Close(); err != nil {
		return err
	}
	return <-b.done
}

// Sync is a no-op: the upload is finalized only on Close.
func (b *s3WritableBlob) Sync() error {
	return nil
}
