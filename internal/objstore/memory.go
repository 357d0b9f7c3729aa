package objstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps objects in memory and counts writes, for tests and
// local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	puts    map[string]int
}

type memObject struct {
	data        []byte
	contentType string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject), puts: make(map[string]int)}
}

func key(bucket, path string) string { return bucket + "/" + path }

func (s *MemoryStore) Put(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key(bucket, path)] = memObject{data: append([]byte(nil), data...), contentType: contentType}
	s.puts[key(bucket, path)]++
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, bucket, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key(bucket, path))
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, bucket, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key(bucket, path)]
	return ok, nil
}

func (s *MemoryStore) SignedURL(_ context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.local/%s/%s?X-Expires=%d", bucket, path, int64(clampTTL(ttl).Seconds())), nil
}

// Puts returns how many times the object was written.
func (s *MemoryStore) Puts(bucket, path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts[key(bucket, path)]
}

// ContentType returns the stored content type of an object.
func (s *MemoryStore) ContentType(bucket, path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key(bucket, path)].contentType
}

// Keys lists every bucket/path held, sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
