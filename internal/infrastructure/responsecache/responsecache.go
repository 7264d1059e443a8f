// Package responsecache implements component H: persistent-response
// storage for GET-mode webhook routes and the Fingerprinted caching mode's
// at-most-one-concurrent-invocation-per-fingerprint guarantee.
package responsecache

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// entry is one cached response body plus its expiry, or a nil expiry for
// entries with no TTL (persistent-response storage proper).
type entry struct {
	body    []byte
	expires time.Time
	hasTTL  bool
}

func (e entry) fresh(now time.Time) bool {
	return !e.hasTTL || now.Before(e.expires)
}

// inflight tracks a single fingerprint's in-progress invocation so
// concurrent GETs sharing a fingerprint wait on one rule call rather than
// invoking the rule redundantly (supplemented feature 4).
type inflight struct {
	done chan struct{}
	body []byte
	err  error
}

// Store holds, per module filename, the most recent response bytes
// produced (persistent-response) plus any Timed/Fingerprinted GET caches
// keyed by fingerprint.
type Store struct {
	mu          sync.Mutex
	persistent  map[string]entry            // filename -> last response
	maxBytes    map[string]uint64           // filename -> PersistentResponseSize cap
	timed       map[string]map[string]entry // filename -> fingerprint -> entry
	inflightMu  sync.Mutex
	inflightMap map[string]*inflight // "filename\x00fingerprint" -> inflight call
}

// NewStore builds a Store. maxBytes caps how many response bytes are
// retained per module filename; a response for a filename absent from
// maxBytes is stored without a size cap.
func NewStore(maxBytes map[string]uint64) *Store {
	return &Store{
		persistent:  make(map[string]entry),
		maxBytes:    maxBytes,
		timed:       make(map[string]map[string]entry),
		inflightMap: make(map[string]*inflight),
	}
}

// SetLimits installs the per-filename persistent-response byte caps once
// the module set is known. Boot constructs the Store before the loader
// runs (host functions need it wired first) and calls this afterward.
func (s *Store) SetLimits(maxBytes map[string]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxBytes = maxBytes
}

// StorePersistentResponse retains body for filename, truncating nothing
// but rejecting bodies larger than the module's configured cap outright
// (the prior stored response, if any, is left untouched).
func (s *Store) StorePersistentResponse(filename string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap, ok := s.maxBytes[filename]; ok && uint64(len(body)) > cap {
		return
	}
	s.persistent[filename] = entry{body: body}
}

// Get implements hostfuncs.PersistentResponseService: the rule reading
// back its own last stored response.
func (s *Store) Get(_ context.Context, filename string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.persistent[filename]
	if !ok {
		return nil, false
	}
	return e.body, true
}

// Fingerprint hashes the allowlisted headers and query parameters of a GET
// request into the cache key CachingFingerprinted uses.
func Fingerprint(query, headers map[string]string) string {
	h := xxhash.New()
	writeSortedMap(h, query)
	writeSortedMap(h, headers)
	sum := h.Sum64()
	return hex.EncodeToString(uint64ToBytes(sum))
}

// TimedGet returns a fresh Timed-mode cache entry for filename/fingerprint,
// if one exists and has not expired.
func (s *Store) TimedGet(filename, fingerprint string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byFingerprint, ok := s.timed[filename]
	if !ok {
		return nil, false
	}
	e, ok := byFingerprint[fingerprint]
	if !ok || !e.fresh(time.Now()) {
		return nil, false
	}
	return e.body, true
}

// TimedPut stores body for filename/fingerprint with the given TTL.
func (s *Store) TimedPut(filename, fingerprint string, body []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byFingerprint, ok := s.timed[filename]
	if !ok {
		byFingerprint = make(map[string]entry)
		s.timed[filename] = byFingerprint
	}
	byFingerprint[fingerprint] = entry{body: body, expires: time.Now().Add(ttl), hasTTL: true}
}

// SingleFlight ensures at most one invocation of the rule producing
// filename's Fingerprinted response runs per fingerprint at a time. call
// is only invoked by the first concurrent caller; every other caller for
// the same key blocks until it completes and receives the same result.
func (s *Store) SingleFlight(ctx context.Context, filename, fingerprint string, call func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	key := filename + "\x00" + fingerprint

	s.inflightMu.Lock()
	if f, ok := s.inflightMap[key]; ok {
		s.inflightMu.Unlock()
		<-f.done
		return f.body, f.err
	}
	f := &inflight{done: make(chan struct{})}
	s.inflightMap[key] = f
	s.inflightMu.Unlock()

	f.body, f.err = call(ctx)
	close(f.done)

	s.inflightMu.Lock()
	delete(s.inflightMap, key)
	s.inflightMu.Unlock()

	return f.body, f.err
}

func writeSortedMap(h *xxhash.Digest, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("=")
		_, _ = h.WriteString(m[k])
		_, _ = h.WriteString("&")
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
	return b
}
