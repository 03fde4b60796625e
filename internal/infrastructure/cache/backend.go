package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable marks failures of the key-value store itself
// (connection refused, timeouts, open circuit). A missing key is never
// reported with this error.
var ErrBackendUnavailable = errors.New("cache backend unavailable")

// ErrInvalidTTL is returned by backends for writes without a positive TTL.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// ErrValueTooLarge is returned by size-limited backends for a write they
// refused to store.
var ErrValueTooLarge = errors.New("cache: value exceeds backend size limit")

// BackendError describes a failed backend round trip.
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache backend %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("cache backend %s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the driver error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is reports every BackendError as ErrBackendUnavailable.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// IsUnavailable reports whether err came from an unreachable backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// Item is a single key written by SetMulti.
type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Backend is the minimal set of atomic primitives the cache layers compose.
// Implementations must treat absence as an ordinary result and return a
// *BackendError only when the store cannot be reached. Size-limited
// backends refuse writes they cannot hold with ErrValueTooLarge.
type Backend interface {
	// Get returns the stored bytes and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set overwrites key. ttl must be positive.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetMulti writes all items in one atomic step.
	SetMulti(ctx context.Context, items ...Item) error

	// SetIfAbsent writes key only when it does not exist and reports whether
	// this call created it. It is a single round trip and is the primitive
	// all distributed locking is built on.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Expire resets the TTL of an existing key without rewriting its value.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Scan walks keys matching a glob pattern in batches. The keyspace is
	// never materialised at once; fn is called once per batch.
	Scan(ctx context.Context, pattern string, fn func(keys []string) error) error

	Ping(ctx context.Context) error

	Close() error
}

func validateTTL(op, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%s %q: %w", op, key, ErrInvalidTTL)
	}
	return nil
}
