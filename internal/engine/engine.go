// Package engine implements the storage engines that back the key-value
// store: Kvs, the generational log engine, and Bolt, an adapter over an
// embedded ordered key-value library. Both satisfy Engine.
package engine

import "errors"

// ErrKeyNotFound is returned by Remove when the key does not exist. Get
// reports a missing key by returning found=false rather than an error.
// Its text is not prefixed like other errors in this package: it flows
// verbatim into the wire Error packet and onto the client's stderr, so
// it must read exactly "Key not found".
var ErrKeyNotFound = errors.New("Key not found")

// ErrCommandMismatch is returned by Get when the record the index points
// at is not a Set record, which indicates a corrupt store.
var ErrCommandMismatch = errors.New("engine: command mismatch: indexed record is not a Set")

// Engine is the capability every storage backend exposes to the server.
// A single Engine is driven by at most one engine process at a time, per
// the single-writer contract of its store directory.
type Engine interface {
	// Set associates key with value, creating or overwriting it. The
	// write is durable (flushed to the OS) before Set returns.
	Set(key, value string) error

	// Get returns the value associated with key. found is false if the
	// key does not exist; that is not an error condition.
	Get(key string) (value string, found bool, err error)

	// Remove deletes key. It returns ErrKeyNotFound if the key does not
	// exist.
	Remove(key string) error

	// Close releases any resources (open file handles, embedded
	// database handles) held by the engine.
	Close() error
}
