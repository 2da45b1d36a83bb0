package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/dbx"
	"github.com/mzhadan/syncbox/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, e *models.CacheEntry) error {
	query := `INSERT INTO cache (key, payload, cached_at, expires_at)
			values (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET payload = excluded.payload,
				cached_at = excluded.cached_at,
				expires_at = excluded.expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		e.Key, e.Payload, dbx.ToMillis(e.CachedAt), dbx.ToMillis(e.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	query := `select key, payload, cached_at, expires_at from cache where key=?`
	row := r.db.QueryRowContext(ctx, query, key)

	e := &models.CacheEntry{}
	var cachedAt, expiresAt int64
	err := row.Scan(&e.Key, &e.Payload, &cachedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select cache entry: %w", err)
	}
	e.CachedAt = dbx.FromMillis(cachedAt)
	e.ExpiresAt = dbx.FromMillis(expiresAt)
	return e, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `delete from cache where key=?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetExpiry(ctx context.Context, key string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `update cache set expires_at=? where key=?`, dbx.ToMillis(at), key)
	if err != nil {
		return fmt.Errorf("failed to set cache expiry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetExpiryAll(ctx context.Context, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `update cache set expires_at=?`, dbx.ToMillis(at))
	if err != nil {
		return 0, fmt.Errorf("failed to set cache expiry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `delete from cache where expires_at <= ?`, dbx.ToMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
