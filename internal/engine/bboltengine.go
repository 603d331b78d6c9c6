package engine

import (
	"fmt"
	"time"
	"unicode/utf8"

	"go.etcd.io/bbolt"
)

// bucketName is the single bucket the adapter uses; the engine contract
// has no notion of namespaces or collections.
var bucketName = []byte("kvs")

// Bolt adapts an embedded ordered key-value library (bbolt) to the engine
// contract, so the server can run against either the generational log
// engine or this backend interchangeably.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if necessary) the bbolt database file at path
// and ensures the store's single bucket exists.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("engine: opening embedded backend: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("engine: initializing embedded backend bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Set stores key->value and flushes to disk before returning, matching the
// durability contract of the log engine.
func (b *Bolt) Set(key, value string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("engine: embedded backend set: %w", err)
	}
	return nil
}

// Get decodes the stored bytes for key as UTF-8. A missing key reports
// found=false, not an error.
func (b *Bolt) Get(key string) (string, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("engine: embedded backend get: %w", err)
	}
	if value == nil {
		return "", false, nil
	}
	if !utf8.Valid(value) {
		return "", false, fmt.Errorf("engine: embedded backend get: stored value for %q is not valid UTF-8", key)
	}
	return string(value), true, nil
}

// Remove deletes key, failing with ErrKeyNotFound if it was absent.
func (b *Bolt) Remove(key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket.Get([]byte(key)) == nil {
			return ErrKeyNotFound
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		if err == ErrKeyNotFound {
			return ErrKeyNotFound
		}
		return fmt.Errorf("engine: embedded backend remove: %w", err)
	}
	return nil
}

// Close closes the underlying database file.
func (b *Bolt) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("engine: closing embedded backend: %w", err)
	}
	return nil
}
