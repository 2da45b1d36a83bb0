package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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

const uploadColumns = `id, name, content_type, size, file_ts, blob, upload_state, target_id, retry_count, checksum, nonce, error, created_at, last_attempt_at`

func scanUpload(row interface{ Scan(...any) error }) (*models.UploadEntry, error) {
	e := &models.UploadEntry{}
	var state string
	var fileTS, createdAt, lastAttemptAt int64
	err := row.Scan(&e.ID, &e.Metadata.Name, &e.Metadata.Type, &e.Metadata.Size, &fileTS,
		&e.Blob, &state, &e.TargetID, &e.RetryCount, &e.Checksum, &e.Nonce, &e.Error,
		&createdAt, &lastAttemptAt)
	if err != nil {
		return nil, err
	}
	e.State = models.UploadState(state)
	e.Metadata.Timestamp = dbx.FromMillis(fileTS)
	e.CreatedAt = dbx.FromMillis(createdAt)
	e.LastAttemptAt = dbx.FromMillis(lastAttemptAt)
	return e, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *models.UploadEntry) error {
	query := `INSERT INTO uploads (id, name, content_type, size, file_ts, blob, upload_state, target_id, retry_count, checksum, nonce, error, created_at, last_attempt_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Metadata.Name, e.Metadata.Type, e.Metadata.Size, dbx.ToMillis(e.Metadata.Timestamp),
		e.Blob, string(e.State), e.TargetID, e.RetryCount, e.Checksum, e.Nonce, e.Error,
		dbx.ToMillis(e.CreatedAt), dbx.ToMillis(e.LastAttemptAt))
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.UploadEntry, error) {
	query := `select ` + uploadColumns + ` from uploads where id=?`
	e, err := scanUpload(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `delete from uploads where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
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

func (r *SQLiteRepository) ListByStates(ctx context.Context, states ...models.UploadState) ([]*models.UploadEntry, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	args := make([]any, 0, len(states))
	for _, s := range states {
		args = append(args, string(s))
	}
	query := `select ` + uploadColumns + ` from uploads where upload_state in (` + placeholders + `) order by created_at asc, rowid asc`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadEntry
	for rows.Next() {
		e, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkEncrypted(ctx context.Context, id string, ciphertext, nonce []byte, checksum string) error {
	query := `update uploads set blob=?, nonce=?, checksum=?, upload_state=? where id=?`
	result, err := r.db.ExecContext(ctx, query, ciphertext, nonce, checksum, string(models.StateEncrypted), id)
	if err != nil {
		return fmt.Errorf("failed to mark upload encrypted: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, id string) error {
	query := `update uploads set upload_state=?, blob=x'', error='' where id=?`
	result, err := r.db.ExecContext(ctx, query, string(models.StateCompleted), id)
	if err != nil {
		return fmt.Errorf("failed to mark upload completed: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) RecordFailure(ctx context.Context, id string, errMsg string, attemptAt time.Time, restingState models.UploadState, terminal bool) error {
	state := restingState
	if terminal {
		state = models.StateFailed
	}
	query := `update uploads set retry_count=retry_count+1, last_attempt_at=?, error=?, upload_state=? where id=?`
	result, err := r.db.ExecContext(ctx, query, dbx.ToMillis(attemptAt), errMsg, string(state), id)
	if err != nil {
		return fmt.Errorf("failed to record upload failure: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) Retry(ctx context.Context, id string) error {
	query := `update uploads set
			upload_state = case when nonce is not null then ? else ? end,
			retry_count = 0, error = '', last_attempt_at = 0
		where id=? and upload_state=?`
	result, err := r.db.ExecContext(ctx, query,
		string(models.StateEncrypted), string(models.StatePending), id, string(models.StateFailed))
	if err != nil {
		return fmt.Errorf("failed to retry upload: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) ReconcileInterrupted(ctx context.Context) (int64, error) {
	query := `update uploads set
			upload_state = case when nonce is not null then ? else ? end
		where upload_state=?`
	result, err := r.db.ExecContext(ctx, query,
		string(models.StateEncrypted), string(models.StatePending), string(models.StateUploading))
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile uploads: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteByState(ctx context.Context, state models.UploadState) (int64, error) {
	result, err := r.db.ExecContext(ctx, `delete from uploads where upload_state=?`, string(state))
	if err != nil {
		return 0, fmt.Errorf("failed to delete uploads: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
