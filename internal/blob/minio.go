// Package blob stores file contents in an S3-compatible object store.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"filedrive/api/internal/util"
)

// Config holds connection settings for the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	UploadTTL time.Duration
	FetchTTL  time.Duration
}

// Store wraps a MinIO client scoped to a single bucket.
type Store struct {
	client    *minio.Client
	bucket    string
	uploadTTL time.Duration
	fetchTTL  time.Duration
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		uploadTTL: cfg.UploadTTL,
		fetchTTL:  cfg.FetchTTL,
	}, nil
}

// NewObjectKey returns a fresh object key for an upload. Keys are grouped
// by date so bucket listings stay browsable.
func (s *Store) NewObjectKey() string {
	return fmt.Sprintf("%s/%s", time.Now().UTC().Format("2006/01/02"), util.NewID("blob"))
}

// PresignUpload returns a URL the client can PUT file bytes to directly.
func (s *Store) PresignUpload(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.uploadTTL)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return u.String(), nil
}

// PresignFetch returns a URL the client can GET file bytes from directly.
// When downloadName is set, the response carries an attachment disposition.
func (s *Store) PresignFetch(ctx context.Context, key, downloadName string) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.fetchTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign fetch: %w", err)
	}
	return u.String(), nil
}

// Fetch streams an object's contents. The caller must close the reader.
func (s *Store) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", key, err)
	}
	return obj, nil
}

// Put writes an object's contents from a reader.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Ping verifies the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("object store unreachable: %w", err)
	}
	return nil
}
