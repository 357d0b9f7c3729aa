// Package objstore is the binary object store port and its adapters.
package objstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("objstore: object not found")

// MaxSignedURLTTL is the longest lifetime either provider accepts for a
// V4-signed URL. Longer requests are clamped.
const MaxSignedURLTTL = 7 * 24 * time.Hour

// Store is an opaque binary object store.
type Store interface {
	Put(ctx context.Context, bucket, path string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, path string) ([]byte, error)
	// Delete removes the object; deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, path string) error
	Exists(ctx context.Context, bucket, path string) (bool, error)
	SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

func clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return time.Hour
	case ttl > MaxSignedURLTTL:
		return MaxSignedURLTTL
	}
	return ttl
}
