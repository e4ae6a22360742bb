package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when no value is stored under the key.
var ErrNotFound = errors.New("store: key not found")

// KV is a minimal string key-value store used to persist local state
// such as the active mailbox session.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
