// Package cache provides a small TTL cache abstraction shared by API instances.
//
// Memory is process-local and suited to tests and single-instance deployments;
// Redis keeps every instance looking at the same entries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores opaque byte values with a per-entry TTL.
// A miss is reported as ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New picks a backend by name. "memory" ignores rdb; "redis" requires it.
func New(backend string, rdb *redis.Client, prefix string) (Cache, error) {
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "", "redis":
		if rdb == nil {
			return nil, errors.New("cache: redis backend needs a client")
		}
		return NewRedis(rdb, prefix), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", backend)
	}
}
