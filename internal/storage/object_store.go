package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes the object storage connection.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
}

// ObjectInfo is the subset of object metadata the application cares about.
type ObjectInfo struct {
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// ObjectStore wraps the S3-compatible client used for avatar and artwork files.
type ObjectStore struct {
	client *minio.Client
}

// New connects to the configured S3-compatible endpoint.
func New(cfg Config) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("storage: endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect %s: %w", cfg.Endpoint, err)
	}

	return &ObjectStore{client: client}, nil
}

// EnsureBucket creates the bucket if it does not already exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: create bucket %s: %w", bucket, err)
	}
	return nil
}

// BucketExists reports whether the bucket is present and reachable.
func (s *ObjectStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("storage: check bucket %s: %w", bucket, err)
	}
	return exists, nil
}

// Upload stores an object under bucket/path.
func (s *ObjectStore) Upload(ctx context.Context, bucket, path string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, path, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("storage: upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

// Remove deletes an object. Removing a missing object is not an error.
func (s *ObjectStore) Remove(ctx context.Context, bucket, path string) error {
	err := s.client.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("storage: remove %s/%s: %w", bucket, path, err)
	}
	return nil
}

// Stat returns metadata for an object, or (nil, nil) when it does not exist.
func (s *ObjectStore) Stat(ctx context.Context, bucket, path string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: stat %s/%s: %w", bucket, path, err)
	}

	return &ObjectInfo{
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// PresignURL issues a time-limited download URL for a private object.
func (s *ObjectStore) PresignURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, time.Time, error) {
	signed, err := s.client.PresignedGetObject(ctx, bucket, path, expiry, url.Values{})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: presign %s/%s: %w", bucket, path, err)
	}
	return signed.String(), time.Now().Add(expiry), nil
}
