// Package artifact stores rendered session artifacts in a blob bucket
package artifact

import (
	"context"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
)

// BlobStore implements collab.ArtifactStore using gocloud.dev/blob,
// supporting S3, GCS, Azure Blob Storage, local files and memory
type BlobStore struct {
	bucket *blob.Bucket
	prefix string
}

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrOpenBucket = errors.New("failed to open artifact bucket")
	ErrWrite      = errors.New("failed to write artifact")
	ErrRead       = errors.New("failed to read artifact")
)

var _ collab.ArtifactStore = (*BlobStore)(nil)

// Open opens the bucket at bucketURL, for example mem://, file:///tmp/x
// or s3://bucket?region=eu-north-1. Keys are stored beneath prefix
func Open(ctx context.Context, bucketURL, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenBucket, err)
	}
	return &BlobStore{bucket: bucket, prefix: prefix}, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	err := s.bucket.WriteAll(ctx, s.prefix+key, data, &blob.WriterOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, s.prefix+key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return data, nil
}

// Delete removes an artifact. Missing keys are not an error
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, s.prefix+key)
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}
