package respcache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/repositories/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE cache (
  key TEXT PRIMARY KEY,
  payload BLOB NOT NULL,
  cached_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)

	return New(cache.NewSQLiteRepository(db), ttl, nil)
}

func TestPutAndGet(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "notes/list", []byte(`[1,2]`), 0))

	got, err := c.Get(ctx, "notes/list")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), got)

	got, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutOverwrites(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("old"), 0))
	require.NoError(t, c.Put(ctx, "k", []byte("new"), 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestGetExpiredEntry(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Put(ctx, "k", []byte("v"), 1000*time.Millisecond))

	clock = clock.Add(1500 * time.Millisecond)
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The expired entry was evicted on read, so a later sweep finds nothing.
	removed, err := c.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestGetAtExactExpiry(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Put(ctx, "k", []byte("v"), time.Second))

	clock = clock.Add(time.Second)
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFetchPrefersRemote(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("cached"), 0))

	got, err := c.Fetch(ctx, "k", func(ctx context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), got)

	cached, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), cached)
}

func TestFetchFallsBackToStale(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Put(ctx, "k", []byte("cached"), time.Second))
	clock = clock.Add(time.Hour)

	got, err := c.Fetch(ctx, "k", func(ctx context.Context) ([]byte, error) {
		return nil, common.ErrUnavailable
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), got)
}

func TestFetchNoCachePropagatesError(t *testing.T) {
	c := setupCache(t, 0)

	_, err := c.Fetch(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		return nil, common.ErrUnavailable
	})
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestFetchRejectionDoesNotServeCache(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("cached"), 0))

	_, err := c.Fetch(ctx, "k", func(ctx context.Context) ([]byte, error) {
		return nil, common.ErrUnauthorized
	})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestMarkStale(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.MarkStale(ctx, "k"))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Marking an absent key is a no-op.
	require.NoError(t, c.MarkStale(ctx, "missing"))
}

func TestMarkAllStale(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", []byte("v"), 0))
	require.NoError(t, c.Put(ctx, "b", []byte("v"), 0))
	require.NoError(t, c.MarkAllStale(ctx))

	for _, key := range []string{"a", "b"} {
		got, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestSweepExpired(t *testing.T) {
	c := setupCache(t, 0)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Put(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, c.Put(ctx, "long", []byte("v"), time.Hour))

	clock = clock.Add(time.Minute)
	removed, err := c.SweepExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	got, err := c.Get(ctx, "long")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
