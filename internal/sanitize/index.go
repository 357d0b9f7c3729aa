package sanitize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/fieldmedia/constants"
)

// VariantIndex records which sanitized variants have been derived, shared
// across server instances. It is advisory: the object store decides whether
// a variant exists, and entries expire on their own.
type VariantIndex interface {
	Lookup(ctx context.Context, mediaID string, audience constants.Audience) (bool, error)
	Remember(ctx context.Context, mediaID string, audience constants.Audience, path string) error
	Forget(ctx context.Context, mediaID string) error
}

var cachedAudiences = []constants.Audience{constants.AudiencePortal, constants.AudiencePublic}

func variantKey(mediaID string, audience constants.Audience) string {
	return fmt.Sprintf("variant:%s:%s", mediaID, audience)
}

// RedisIndex stores one expiring key per variant, valued with its object path.
type RedisIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIndex keeps keys for ttl, or a day when ttl is not positive.
func NewRedisIndex(client *redis.Client, ttl time.Duration) *RedisIndex {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIndex{client: client, ttl: ttl}
}

// NewRedisClient connects to the Redis server at url and checks it answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (i *RedisIndex) Lookup(ctx context.Context, mediaID string, audience constants.Audience) (bool, error) {
	n, err := i.client.Exists(ctx, variantKey(mediaID, audience)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (i *RedisIndex) Remember(ctx context.Context, mediaID string, audience constants.Audience, path string) error {
	return i.client.Set(ctx, variantKey(mediaID, audience), path, i.ttl).Err()
}

func (i *RedisIndex) Forget(ctx context.Context, mediaID string) error {
	keys := make([]string, 0, len(cachedAudiences))
	for _, a := range cachedAudiences {
		keys = append(keys, variantKey(mediaID, a))
	}
	return i.client.Del(ctx, keys...).Err()
}

// MemoryIndex is an in-process VariantIndex.
type MemoryIndex struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{keys: make(map[string]string)}
}

func (i *MemoryIndex) Lookup(_ context.Context, mediaID string, audience constants.Audience) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.keys[variantKey(mediaID, audience)]
	return ok, nil
}

func (i *MemoryIndex) Remember(_ context.Context, mediaID string, audience constants.Audience, path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[variantKey(mediaID, audience)] = path
	return nil
}

func (i *MemoryIndex) Forget(_ context.Context, mediaID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, a := range cachedAudiences {
		delete(i.keys, variantKey(mediaID, a))
	}
	return nil
}

type noIndex struct{}

func (noIndex) Lookup(context.Context, string, constants.Audience) (bool, error)   { return false, nil }
func (noIndex) Remember(context.Context, string, constants.Audience, string) error { return nil }
func (noIndex) Forget(context.Context, string) error                               { return nil }
