package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by GetOne when no record exists for the identifier.
// It is an empty result, not a failure of the store.
var ErrNotFound = errors.New("record not found")

// UnknownCollectionError is returned when the collection name is not in the
// registry. Always a client input error.
type UnknownCollectionError struct {
	Collection string
}

func (e *UnknownCollectionError) Error() string {
	return fmt.Sprintf("unknown collection %q", e.Collection)
}

// ValidationError is returned when a record lacks required fields or its
// identifier cannot be used in a key.
type ValidationError struct {
	Collection string
	Missing    []string
	Reason     string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing fields: %s", e.Collection, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Collection, e.Reason)
}

// StorageError wraps a failure of the key-value backend.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SourceLoadError is returned when a seed source cannot be read or parsed.
// Nothing has been written when it is returned.
type SourceLoadError struct {
	Source string
	Err    error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("load seed source %s: %v", e.Source, e.Err)
}

func (e *SourceLoadError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err was caused by the caller's input rather
// than by the store.
func IsClientError(err error) bool {
	var uc *UnknownCollectionError
	var ve *ValidationError
	return errors.As(err, &uc) || errors.As(err, &ve)
}
