// Package kvstore defines the ordered byte-keyed store contract the rest
// of collabcore is built on, and a bbolt-backed implementation of it.
//
// The contract itself is assumed external per the scope of this module —
// any ordered store with point get/put/delete, half-open range scan, and
// reverse seek satisfies it — but collabcore still needs a concrete,
// embedded implementation to run against, grounded the same way the
// teacher stack grounds its persistence layer on bbolt buckets.
package kvstore

import "context"

// Entry is one key/value pair returned by a range scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Store is the ordered key-value contract every collabcore package
// persists through: point get/insert/remove, half-open range removal and
// scan, and reverse seek for the largest key less than or equal to a
// probe.
type Store interface {
	// Get returns the value for key, or (nil, false) if it does not exist.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)

	// Insert writes key to value, overwriting any existing value.
	Insert(ctx context.Context, key, value []byte) error

	// Remove deletes key. It is not an error if key does not exist.
	Remove(ctx context.Context, key []byte) error

	// RemoveRange deletes every key in [from, to). The upper bound is
	// exclusive.
	RemoveRange(ctx context.Context, from, to []byte) error

	// Range calls fn for every entry in [from, to) in ascending key
	// order. The upper bound is exclusive. Range stops and returns fn's
	// error if fn returns a non-nil error.
	Range(ctx context.Context, from, to []byte, fn func(Entry) error) error

	// NextBackEntry returns the entry with the largest key less than or
	// equal to probe, or (Entry{}, false) if none exists.
	NextBackEntry(ctx context.Context, probe []byte) (Entry, bool, error)

	// Close releases the underlying backend.
	Close() error
}
