// Package cache implements Plaid's process-wide, per-name cache: LRU
// eviction with a configured capacity and one TTL per named cache, counted
// from each entry's insertion (a per-call TTL is not applied), backed by
// hashicorp/golang-lru's expirable variant.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultTTL = 5 * time.Minute

// namespacedCache is one named cache instance: a fixed-capacity LRU whose
// entries expire independent of eviction pressure. lastEvicted records the
// most recent key dropped by the underlying LRU's eviction callback, read
// and cleared immediately after the Add call that may have triggered it.
type namespacedCache struct {
	mu          sync.Mutex
	lru         *lru.LRU[string, []byte]
	lastEvicted string
	hasEvicted  bool
}

func newNamespacedCache(capacity int, ttl time.Duration) *namespacedCache {
	nc := &namespacedCache{}
	nc.lru = lru.NewLRU[string, []byte](capacity, func(key string, _ []byte) {
		nc.lastEvicted = key
		nc.hasEvicted = true
	}, ttl)
	return nc
}

// Service implements hostfuncs.CacheService, lazily creating one LRU per
// named cache the first time it is used, sized per cacheCapacities (or
// defaultCapacity if the name has no explicit entry).
type Service struct {
	mu              sync.Mutex
	caches          map[string]*namespacedCache
	defaultCapacity int
	cacheCapacities map[string]int
}

// NewService builds a Service. defaultCapacity backs any named cache not
// listed in cacheCapacities.
func NewService(defaultCapacity int, cacheCapacities map[string]int) *Service {
	if defaultCapacity <= 0 {
		defaultCapacity = 1024
	}
	return &Service{
		caches:          make(map[string]*namespacedCache),
		defaultCapacity: defaultCapacity,
		cacheCapacities: cacheCapacities,
	}
}

func (s *Service) get(name string) *namespacedCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c
	}
	capacity := s.defaultCapacity
	if v, ok := s.cacheCapacities[name]; ok && v > 0 {
		capacity = v
	}
	c := newNamespacedCache(capacity, defaultTTL)
	s.caches[name] = c
	return c
}

// Insert implements hostfuncs.CacheService. The library applies one TTL
// per named cache (set at first use) rather than per call; ttlSeconds is
// accepted for ABI compatibility with the wire format but only the
// cache-wide default currently governs expiry. The evicted-key
// observability hook (supplemented feature 5, grounded on the original's
// test_redis_cache_eviction module) reports the key dropped to make room,
// if the LRU was at capacity.
func (s *Service) Insert(_ context.Context, cacheName, key string, value []byte, _ int) (string, bool) {
	c := s.get(cacheName)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasEvicted = false
	c.lastEvicted = ""
	c.lru.Add(key, value)
	if c.hasEvicted && c.lastEvicted != key {
		return c.lastEvicted, true
	}
	return "", false
}

// Get implements hostfuncs.CacheService.
func (s *Service) Get(_ context.Context, cacheName, key string) ([]byte, bool) {
	c := s.get(cacheName)
	return c.lru.Get(key)
}
