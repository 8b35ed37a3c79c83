// Package cache provides a small key/value cache abstraction with explicit
// TTLs. Values are stored as JSON.
package cache

import (
	"context"
	"time"
)

// Cache is owned by the composition root and injected into consumers.
type Cache interface {
	// Get decodes the value stored at key into dest. It reports false when
	// the key is absent or expired.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set stores value at key for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Invalidate removes keys. Missing keys are ignored.
	Invalidate(ctx context.Context, keys ...string) error
}
