// Package storage implements Plaid's rule-scoped and shared key/value
// namespaces (component D), interchangeable across an embedded B-tree
// backend and a cloud table backend behind one Backend interface.
package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrSizeLimitExceeded is returned by Insert when the write would push a
// namespace's total key+value bytes past its configured cap. The store is
// left unchanged.
var ErrSizeLimitExceeded = errors.New("storage: namespace size limit exceeded")

// Backend is the minimal physical key/value operation set every storage
// implementation (embedded bbolt, DynamoDB) must provide. Namespacing and
// size accounting live above this interface, in Store.
type Backend interface {
	Get(ctx context.Context, physicalKey string) ([]byte, bool, error)
	Put(ctx context.Context, physicalKey string, value []byte) error
	Delete(ctx context.Context, physicalKey string) error
	// ListWithPrefix returns every physical key beginning with prefix.
	ListWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

const namespaceSeparator = "\x00"

func physicalKey(namespace, userKey string) string {
	return namespace + namespaceSeparator + userKey
}

func stripNamespace(namespace, physical string) (string, bool) {
	prefix := namespace + namespaceSeparator
	if !strings.HasPrefix(physical, prefix) {
		return "", false
	}
	return strings.TrimPrefix(physical, prefix), true
}

// Store implements the rule-scoped storage semantics of spec.md §4.D over
// a physical Backend: namespacing by module filename and atomic
// size-checked writes. Store does no shared-DB allowlist enforcement (the
// checks live in Service and hostfuncs; Store trusts its caller already
// authorized the call).
type Store struct {
	backend Backend

	mu sync.Mutex
	// sizes starts empty and is only grown by Insert/Delete; against a
	// durable backend (bolt, DynamoDB) it is not rebuilt from existing data
	// on restart, so a namespace's cap can be exceeded until enough writes
	// re-accumulate the true count.
	sizes  map[string]uint64 // namespace -> current total key+value bytes
	limits map[string]uint64
}

// NewStore wraps backend with namespace size accounting. limits maps a
// namespace name to its byte cap; namespaces absent from limits are
// unlimited.
func NewStore(backend Backend, limits map[string]uint64) *Store {
	return &Store{backend: backend, sizes: make(map[string]uint64), limits: limits}
}

// limitFor is only ever called with s.mu already held (Insert).
func (s *Store) limitFor(namespace string) (uint64, bool) {
	v, ok := s.limits[namespace]
	return v, ok
}

// SetLimits installs the per-namespace byte caps once they are known. Boot
// constructs the rule Store before the loader has resolved artifacts, then
// calls this afterward with each module's filename mapped to its
// storage_size_limit.
func (s *Store) SetLimits(limits map[string]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = limits
}

// Insert writes key=value into namespace, rejecting the write unchanged if
// it would exceed the namespace's size_limit.
func (s *Store) Insert(ctx context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := physicalKey(namespace, key)
	existing, found, err := s.backend.Get(ctx, pk)
	if err != nil {
		return err
	}

	current := s.sizes[namespace]
	proposed := current
	if found {
		proposed -= uint64(len(key) + len(existing))
	}
	proposed += uint64(len(key) + len(value))

	if limit, ok := s.limitFor(namespace); ok && proposed > limit {
		return ErrSizeLimitExceeded
	}

	if err := s.backend.Put(ctx, pk, value); err != nil {
		return err
	}
	s.sizes[namespace] = proposed
	return nil
}

// Get reads key from namespace.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	return s.backend.Get(ctx, physicalKey(namespace, key))
}

// Delete removes key from namespace, returning the prior value if present.
func (s *Store) Delete(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := physicalKey(namespace, key)
	existing, found, err := s.backend.Get(ctx, pk)
	if err != nil || !found {
		return nil, false, err
	}
	if err := s.backend.Delete(ctx, pk); err != nil {
		return nil, false, err
	}
	if size, ok := s.sizes[namespace]; ok {
		delta := uint64(len(key) + len(existing))
		if delta > size {
			delta = size
		}
		s.sizes[namespace] = size - delta
	}
	return existing, true, nil
}

// ListKeys enumerates user keys within namespace. mode is "all" or
// "prefix", with prefix applied only when mode == "prefix".
func (s *Store) ListKeys(ctx context.Context, namespace, mode, prefix string) ([]string, error) {
	physicalPrefix := namespace + namespaceSeparator
	if mode == "prefix" {
		physicalPrefix += prefix
	}
	physicalKeys, err := s.backend.ListWithPrefix(ctx, physicalPrefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(physicalKeys))
	for _, pk := range physicalKeys {
		if userKey, ok := stripNamespace(namespace, pk); ok {
			keys = append(keys, userKey)
		}
	}
	return keys, nil
}
