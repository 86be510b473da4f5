package tokens

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Store is a TTL-bounded key-value backend for token records. It holds no
// token logic. Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, key string, rec *Record, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// MemoryStore keeps records in process memory; entries vanish after their TTL.
type MemoryStore struct {
	cache *ttlcache.Cache[string, Record]
}

// NewMemoryStore creates a store and starts its expiry loop. Call Close to stop it.
func NewMemoryStore() *MemoryStore {
	c := ttlcache.New[string, Record](
		ttlcache.WithDisableTouchOnHit[string, Record](),
	)
	go c.Start()
	return &MemoryStore{cache: c}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, nil
	}
	rec := item.Value()
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	s.cache.Set(key, *rec, ttl)
	return nil
}

func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int { return s.cache.Len() }

func (s *MemoryStore) Close() { s.cache.Stop() }
