package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultBucketRegion = "us-east-1"

	// minBucketPartSize is the smallest multipart part S3 accepts. Uploads of
	// unknown length or larger than one part go through multipart, buffering
	// one part in memory at a time regardless of the transfer chunk size.
	minBucketPartSize = 5 * 1024 * 1024
)

// BucketConfig describes an S3-compatible bucket used as object storage.
type BucketConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
	PartSize  uint64
}

// BucketStorage is a StorageEngine that keeps payloads in an S3-compatible
// bucket. An object store has no rename, but a single PutObject only becomes
// visible once the whole body has been received, and a multipart upload only
// once it is completed. A failed multipart upload is aborted.
type BucketStorage struct {
	client   *minio.Client
	bucket   string
	prefix   string
	partSize uint64
}

// NewBucketStorage creates a client for cfg. Empty credentials select
// anonymous requests.
func NewBucketStorage(cfg BucketConfig) (*BucketStorage, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("bucket endpoint must not be empty")
	}

	if cfg.Bucket == "" {
		return nil, errors.New("bucket name must not be empty")
	}

	if cfg.Region == "" {
		cfg.Region = defaultBucketRegion
	}

	if cfg.PartSize < minBucketPartSize {
		cfg.PartSize = minBucketPartSize
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket client: %w", err)
	}

	return &BucketStorage{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		partSize: cfg.PartSize,
	}, nil
}

// PartSize returns the multipart part size used for uploads.
func (s *BucketStorage) PartSize() uint64 {
	return s.partSize
}

func (s *BucketStorage) objectName(key string) (string, error) {
	if !fs.ValidPath(key) || key == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	if s.prefix == "" {
		return key, nil
	}
	return path.Join(s.prefix, key), nil
}

// translateError maps a missing object onto ErrNotFound.
func translateError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}

func (s *BucketStorage) Stat(ctx context.Context, key string) (int64, error) {
	name, err := s.objectName(key)
	if err != nil {
		return 0, err
	}

	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return 0, translateError(err)
	}

	return info.Size, nil
}

func (s *BucketStorage) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, translateError(err)
	}

	// Stat issues the GET, so the reported size belongs to the same response
	// the body is streamed from.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, translateError(err)
	}

	return obj, info.Size, nil
}

func (s *BucketStorage) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	name, err := s.objectName(key)
	if err != nil {
		return 0, err
	}

	info, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		PartSize:    s.partSize,
	})
	if err != nil {
		return 0, fmt.Errorf("put object %s: %w", name, err)
	}

	return info.Size, nil
}
