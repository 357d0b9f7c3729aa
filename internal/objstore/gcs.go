package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore stores objects in Google Cloud Storage. Signing uses the
// client's credentials (service account key or IAM signBlob).
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a client from application default credentials.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

func (s *GCSStore) Put(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	w := s.client.Bucket(bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", bucket, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, bucket, path string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, path, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", bucket, path, err)
	}
	return data, nil
}

func (s *GCSStore) Delete(ctx context.Context, bucket, path string) error {
	err := s.client.Bucket(bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gs://%s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, bucket, path string) (bool, error) {
	_, err := s.client.Bucket(bucket).Object(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat gs://%s/%s: %w", bucket, path, err)
	}
	return true, nil
}

func (s *GCSStore) SignedURL(_ context.Context, bucket, path string, ttl time.Duration) (string, error) {
	u, err := s.client.Bucket(bucket).SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(clampTTL(ttl)),
	})
	if err != nil {
		return "", fmt.Errorf("sign gs://%s/%s: %w", bucket, path, err)
	}
	return u, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
