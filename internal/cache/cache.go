// Package cache provides a small TTL byte cache used to avoid re-fetching
// LNURL pay endpoints for recently resolved recipients.
package cache

import (
	"context"
	"time"
)

// Backend is the cache interface.
type Backend interface {
	// Get retrieves a value. Returns (value, found, error).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
