package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joseph-ayodele/fieldmedia/internal/common"
)

// MinIOStore talks to MinIO or any S3-compatible service.
type MinIOStore struct {
	client *minio.Client
	logger *slog.Logger
}

// NewMinIOStore connects and makes sure the configured bucket exists. The
// bucket stays private: media is only reachable through signed URLs.
func NewMinIOStore(ctx context.Context, cfg common.ObjectStoreConfig, logger *slog.Logger) (*MinIOStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created bucket", "bucket", cfg.Bucket)
	}
	return &MinIOStore{client: client, logger: logger}, nil
}

func (s *MinIOStore) Put(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *MinIOStore) Get(ctx context.Context, bucket, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(bucket, path, err)
	}
	defer func(obj io.Closer) {
		if err := obj.Close(); err != nil {
			s.logger.Warn("close object failed", "path", path, "error", err)
		}
	}(obj)

	// GetObject is lazy: a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr(bucket, path, err)
	}
	return data, nil
}

func (s *MinIOStore) Delete(ctx context.Context, bucket, path string) error {
	err := s.client.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("delete %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *MinIOStore) Exists(ctx context.Context, bucket, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, path, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s/%s: %w", bucket, path, err)
}

func (s *MinIOStore) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, path, clampTTL(ttl), url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, path, err)
	}
	return u.String(), nil
}

func (s *MinIOStore) mapErr(bucket, path string, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
	}
	return fmt.Errorf("get %s/%s: %w", bucket, path, err)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}
