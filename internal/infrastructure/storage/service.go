package storage

import (
	"context"
	"errors"
)

// ErrSharedAccessDenied is returned when a caller not in a shared
// namespace's read-write set attempts a mutating operation.
var ErrSharedAccessDenied = errors.New("storage: caller has read-only access to shared namespace")

// SharedNamespace records which callers may read and which may write a
// named shared database, per spec.md §4.D.
type SharedNamespace struct {
	Read      map[string]bool
	ReadWrite map[string]bool
}

func (s SharedNamespace) canRead(filename string) bool  { return s.Read[filename] || s.ReadWrite[filename] }
func (s SharedNamespace) canWrite(filename string) bool { return s.ReadWrite[filename] }

// Service implements hostfuncs.StorageService over a rule-scoped Store and
// a set of named shared-DB Stores.
type Service struct {
	ruleStore   *Store
	sharedStore *Store
	shared      map[string]SharedNamespace
}

// NewService builds a Service backed by ruleStore for per-rule namespaces
// and sharedStore for shared-DB namespaces, with shared describing each
// shared DB's r/rw membership.
func NewService(ruleStore, sharedStore *Store, shared map[string]SharedNamespace) *Service {
	return &Service{ruleStore: ruleStore, sharedStore: sharedStore, shared: shared}
}

// SetRuleLimits installs the per-module storage_size_limit caps on the
// rule-scoped Store, once the loader has resolved them from every
// Artifact. Boot builds the Service before the loader runs (host functions
// need it wired first), so this is always a follow-up call.
func (s *Service) SetRuleLimits(limits map[string]uint64) {
	s.ruleStore.SetLimits(limits)
}

func (s *Service) Insert(ctx context.Context, filename, key string, value []byte) error {
	return s.ruleStore.Insert(ctx, filename, key, value)
}

func (s *Service) Get(ctx context.Context, filename, key string) ([]byte, bool, error) {
	return s.ruleStore.Get(ctx, filename, key)
}

func (s *Service) Delete(ctx context.Context, filename, key string) ([]byte, bool, error) {
	return s.ruleStore.Delete(ctx, filename, key)
}

func (s *Service) ListKeys(ctx context.Context, filename, mode, prefix string) ([]string, error) {
	return s.ruleStore.ListKeys(ctx, filename, mode, prefix)
}

func (s *Service) SharedInsert(ctx context.Context, db, callerFilename, key string, value []byte) error {
	ns, ok := s.shared[db]
	if !ok || !ns.canWrite(callerFilename) {
		return ErrSharedAccessDenied
	}
	return s.sharedStore.Insert(ctx, db, key, value)
}

func (s *Service) SharedGet(ctx context.Context, db, callerFilename, key string) ([]byte, bool, error) {
	ns, ok := s.shared[db]
	if !ok || !ns.canRead(callerFilename) {
		return nil, false, ErrSharedAccessDenied
	}
	return s.sharedStore.Get(ctx, db, key)
}

func (s *Service) SharedDelete(ctx context.Context, db, callerFilename, key string) ([]byte, bool, error) {
	ns, ok := s.shared[db]
	if !ok || !ns.canWrite(callerFilename) {
		return nil, false, ErrSharedAccessDenied
	}
	return s.sharedStore.Delete(ctx, db, key)
}

func (s *Service) SharedListKeys(ctx context.Context, db, callerFilename, mode, prefix string) ([]string, error) {
	ns, ok := s.shared[db]
	if !ok || !ns.canRead(callerFilename) {
		return nil, ErrSharedAccessDenied
	}
	return s.sharedStore.ListKeys(ctx, db, mode, prefix)
}
