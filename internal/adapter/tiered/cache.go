// Package tiered layers two cache backends so definition reads hit the
// in-process level first and fall through to the shared remote level.
package tiered

import (
	"context"
	"time"

	"github.com/agentlens/feedback-engine/internal/port/cache"
)

// Cache chains a local level with a remote level. Reads consult local
// first and backfill it on a remote hit; writes and deletes go to both
// so mutation invalidation reaches every node.
type Cache struct {
	local       cache.Cache
	remote      cache.Cache
	localExpire time.Duration
}

// New builds a tiered cache. localExpire bounds how long backfilled
// entries stay in the local level.
func New(local, remote cache.Cache, localExpire time.Duration) *Cache {
	return &Cache{local: local, remote: remote, localExpire: localExpire}
}

// Get returns the cached value, checking local then remote. A remote
// hit is copied into the local level before returning.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.local.Set(ctx, key, val, c.localExpire)
		return val, true, nil
	}

	return nil, false, nil
}

// Set writes to both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes the key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}
