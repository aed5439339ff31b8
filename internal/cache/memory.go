package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates an in-process Store. Used in tests and as the
// ephemeral layer when no redis is configured.
func NewMemoryStore() Store {
	return &memoryStore{c: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v.([]byte), nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.c.Set(key, cp, ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.c.Delete(k)
	}
	return nil
}
