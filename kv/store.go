package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps transport and server failures of the backing store.
	ErrUnavailable = errors.New("kv: store unavailable")
	// ErrConflict is returned by Update when the retry budget is exhausted.
	ErrConflict = errors.New("kv: concurrent update conflict")
)

// UpdateFunc receives the current value of a key and returns its replacement.
// Returning an error aborts the update without writing.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is the expiring key-value capability consumed by the directory, session
// and token stores. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key. A ttl <= 0 stores the key without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Increment(ctx context.Context, key string, amount int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Take(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Ping(ctx context.Context) error
}
