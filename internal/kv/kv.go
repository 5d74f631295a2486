// Package kv is a small key-value abstraction with per-key TTL. Session
// tokens live behind it so the service never keeps a process-global map
// and stays correct when run as multiple instances over a shared store.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned for missing or expired keys.
var ErrKeyNotFound = errors.New("key not found")

// Store is a key-value store with per-key expiry. A zero TTL means the
// key does not expire.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
