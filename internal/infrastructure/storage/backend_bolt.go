package storage

import (
	"context"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"
)

// boltBucket is the single bucket every physical key lives in; namespacing
// is already encoded into the physical key by Store, so one flat bucket is
// sufficient and keeps prefix scans (bbolt Cursor.Seek) a single pass.
var boltBucket = []byte("plaid_storage")

// BoltBackend is the embedded-durable Backend, standing in for the
// original runtime's sled backend (spec.md §4.D: "embedded B-tree").
// go.etcd.io/bbolt is the standard Go-ecosystem analogue; no repo in the
// retrieved corpus uses bbolt, so it is named as an out-of-pack ecosystem
// dependency rather than grounded on a specific example file.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBoltBackend opens (creating if necessary) a bbolt database at path.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening bolt database %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: creating bolt bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

// Close releases the underlying database file.
func (b *BoltBackend) Close() error { return b.db.Close() }

func (b *BoltBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	return value, value != nil, err
}

func (b *BoltBackend) Put(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), value)
	})
}

func (b *BoltBackend) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
}

func (b *BoltBackend) ListWithPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}
