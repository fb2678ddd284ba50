// Package backend defines the key-value primitives the record store is built
// on and provides implementations over Redis, bbolt, SQLite, a JSON file and
// process memory.
package backend

import (
	"context"
	"errors"
)

// ErrNil is returned by Get when the key holds no value.
var ErrNil = errors.New("backend: nil value")

// Backend is the interface that every key-value engine must implement.
// Implementations must be safe for concurrent use; a single instance is
// shared by every request.
type Backend interface {
	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Get returns the value at key, or ErrNil if there is none.
	Get(ctx context.Context, key string) ([]byte, error)

	// MGet returns one entry per key, in order. Keys without a value yield a
	// nil entry.
	MGet(ctx context.Context, keys []string) ([][]byte, error)

	// SAdd adds member to the set stored at key. Adding an existing member
	// is a no-op.
	SAdd(ctx context.Context, key, member string) error

	// SMembers returns every member of the set at key in no particular
	// order. A missing set is empty.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Close releases the underlying connection or file handle.
	Close() error
}

// Atomic is implemented by backends that can store a value and register a
// set member in a single all-or-nothing operation.
type Atomic interface {
	SetAndAdd(ctx context.Context, key string, value []byte, set, member string) error
}
