// Package respcache implements the TTL cache for remote read responses,
// including the stale-fallback path used while the remote is unreachable.
package respcache

import (
	"context"
	"fmt"
	"time"

	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/logging"
	"github.com/mzhadan/syncbox/internal/models"
	"github.com/mzhadan/syncbox/internal/repositories/cache"
)

// DefaultTTL applies when a caller stores an entry without an explicit TTL.
const DefaultTTL = 24 * time.Hour

// FetchFunc produces a fresh payload from the remote for a cache key.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Cache is the TTL response cache. All expiry decisions use the injected
// clock, so tests can advance time without sleeping.
type Cache struct {
	repo cache.Repository
	ttl  time.Duration
	log  logging.Logger
	now  func() time.Time
}

// New builds a cache with the given default TTL (DefaultTTL when zero). A
// nil logger falls back to a no-op one.
func New(repo cache.Repository, ttl time.Duration, log logging.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Cache{repo: repo, ttl: ttl, log: log, now: time.Now}
}

// Put stores a payload under key with the given TTL, overwriting any
// previous entry. A non-positive TTL falls back to the cache default.
func (c *Cache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()
	e := &models.CacheEntry{
		Key:       key,
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.repo.Put(ctx, e); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Get returns the cached payload for key, or nil with no error when the key
// is absent or expired. An expired entry is deleted on the way out.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := c.repo.Get(ctx, key)
	if err != nil {
		if common.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if e.Expired(c.now()) {
		if err := c.repo.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("cache evict: %w", err)
		}
		c.log.Debug(ctx, "cache entry expired", "key", key)
		return nil, nil
	}
	return e.Payload, nil
}

// Fetch returns the payload for key, preferring a live remote read. A fresh
// result overwrites the cached entry. When the remote fails with a transient
// error, the cached payload is served even if expired; with no cached copy
// at all the remote error is returned.
func (c *Cache) Fetch(ctx context.Context, key string, fn FetchFunc) ([]byte, error) {
	payload, err := fn(ctx)
	if err == nil {
		if pErr := c.Put(ctx, key, payload, 0); pErr != nil {
			return nil, pErr
		}
		return payload, nil
	}
	if !common.IsTransient(err) {
		return nil, err
	}

	e, gErr := c.repo.Get(ctx, key)
	if gErr != nil {
		if common.IsNotFound(gErr) {
			return nil, err
		}
		return nil, fmt.Errorf("cache get: %w", gErr)
	}
	c.log.Warn(ctx, "serving cached payload, remote unavailable",
		"key", key, "cached_at", e.CachedAt, "error", err)
	return e.Payload, nil
}

// MarkStale forces the entry for key to expire immediately, so the next Get
// misses and the next Fetch must consult the remote first.
func (c *Cache) MarkStale(ctx context.Context, key string) error {
	err := c.repo.SetExpiry(ctx, key, c.now())
	if err != nil && !common.IsNotFound(err) {
		return fmt.Errorf("cache mark stale: %w", err)
	}
	return nil
}

// MarkAllStale forces every entry to expire immediately. Used on an offline
// to online transition so cached reads revalidate against the remote once.
func (c *Cache) MarkAllStale(ctx context.Context) error {
	n, err := c.repo.SetExpiryAll(ctx, c.now())
	if err != nil {
		return fmt.Errorf("cache mark all stale: %w", err)
	}
	if n > 0 {
		c.log.Debug(ctx, "cache marked stale", "entries", n)
	}
	return nil
}

// Invalidate removes the entry for key. Missing keys are not an error.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.repo.Delete(ctx, key)
}

// SweepExpired deletes every expired entry and returns how many were
// removed. Meant to run periodically from the coordinator.
func (c *Cache) SweepExpired(ctx context.Context) (int64, error) {
	n, err := c.repo.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("cache sweep: %w", err)
	}
	if n > 0 {
		c.log.Debug(ctx, "cache sweep", "removed", n)
	}
	return n, nil
}
