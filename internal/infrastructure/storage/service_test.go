package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(shared map[string]SharedNamespace) *Service {
	backend := NewMemoryBackend()
	return NewService(NewStore(backend, nil), NewStore(backend, nil), shared)
}

func TestServiceRuleScopedRoundTrip(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "triage.wasm", "k", []byte("v")))
	v, ok, err := s.Get(ctx, "triage.wasm", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestServiceSetRuleLimitsEnforcedOnInsert(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	s.SetRuleLimits(map[string]uint64{"triage.wasm": 10})

	err := s.Insert(ctx, "triage.wasm", "k", []byte("123456789012345"))
	assert.ErrorIs(t, err, ErrSizeLimitExceeded)
}

func TestServiceSharedReadDeniedWithoutGrant(t *testing.T) {
	s := newTestService(map[string]SharedNamespace{
		"incidents": {Read: map[string]bool{"reader.wasm": true}},
	})

	_, _, err := s.SharedGet(context.Background(), "incidents", "stranger.wasm", "k")
	assert.ErrorIs(t, err, ErrSharedAccessDenied)
}

func TestServiceSharedReadAllowed(t *testing.T) {
	s := newTestService(map[string]SharedNamespace{
		"incidents": {ReadWrite: map[string]bool{"writer.wasm": true}, Read: map[string]bool{"reader.wasm": true}},
	})
	ctx := context.Background()

	require.NoError(t, s.SharedInsert(ctx, "incidents", "writer.wasm", "k", []byte("v")))

	v, ok, err := s.SharedGet(ctx, "incidents", "reader.wasm", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestServiceSharedWriteDeniedForReadOnlyCaller(t *testing.T) {
	s := newTestService(map[string]SharedNamespace{
		"incidents": {Read: map[string]bool{"reader.wasm": true}},
	})

	err := s.SharedInsert(context.Background(), "incidents", "reader.wasm", "k", []byte("v"))
	assert.ErrorIs(t, err, ErrSharedAccessDenied)
}

func TestServiceSharedUnknownDatabaseDenied(t *testing.T) {
	s := newTestService(nil)
	_, _, err := s.SharedGet(context.Background(), "unknown-db", "any.wasm", "k")
	assert.ErrorIs(t, err, ErrSharedAccessDenied)
}

func TestServiceSharedListKeysRespectsAllowlist(t *testing.T) {
	s := newTestService(map[string]SharedNamespace{
		"incidents": {ReadWrite: map[string]bool{"writer.wasm": true}},
	})
	ctx := context.Background()
	require.NoError(t, s.SharedInsert(ctx, "incidents", "writer.wasm", "a", []byte("1")))

	keys, err := s.SharedListKeys(ctx, "incidents", "writer.wasm", "all", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	_, err = s.SharedListKeys(ctx, "incidents", "stranger.wasm", "all", "")
	assert.ErrorIs(t, err, ErrSharedAccessDenied)
}
