// Package cache persists cached remote responses in the local store.
package cache

import (
	"context"
	"time"

	"github.com/mzhadan/syncbox/internal/models"
)

// Repository stores CacheEntry records keyed by cache key. Expiry policy
// lives in the respcache service; the repository only filters and deletes
// by the timestamps it is given.
type Repository interface {
	// Put inserts or overwrites the entry for its key.
	Put(ctx context.Context, e *models.CacheEntry) error

	// Get returns the entry regardless of expiry, or common.ErrNotFound.
	Get(ctx context.Context, key string) (*models.CacheEntry, error)

	// Delete removes the entry. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// SetExpiry rewrites the expiry instant of one entry.
	SetExpiry(ctx context.Context, key string, at time.Time) error

	// SetExpiryAll rewrites the expiry instant of every entry and returns
	// how many were touched.
	SetExpiryAll(ctx context.Context, at time.Time) (int64, error)

	// DeleteExpired removes all entries with expiry at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
