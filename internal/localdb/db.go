// Package localdb bootstraps the local SQLite store: it opens the database,
// applies the embedded goose migrations and wires the repositories.
package localdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mzhadan/syncbox/internal/migrations"
	"github.com/mzhadan/syncbox/internal/repositories/cache"
	"github.com/mzhadan/syncbox/internal/repositories/operations"
	"github.com/mzhadan/syncbox/internal/repositories/uploads"
	"github.com/pressly/goose/v3"
)

type Repositories struct {
	Operations operations.Repository
	Uploads    uploads.Repository
	Cache      cache.Repository
	DB         *sql.DB
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	repos := &Repositories{
		Operations: operations.NewSQLiteRepository(db),
		Uploads:    uploads.NewSQLiteRepository(db),
		Cache:      cache.NewSQLiteRepository(db),
		DB:         db,
	}
	return repos, nil
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}
