package operations

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

const opColumns = `id, op_type, entity, payload, status, attempts, error, created_at, last_attempt_at`

func scanOperation(row interface{ Scan(...any) error }) (*models.SyncOperation, error) {
	op := &models.SyncOperation{}
	var opType, status string
	var createdAt, lastAttemptAt int64
	err := row.Scan(&op.ID, &opType, &op.Entity, &op.Payload, &status,
		&op.Attempts, &op.Error, &createdAt, &lastAttemptAt)
	if err != nil {
		return nil, err
	}
	op.Type = models.OperationType(opType)
	op.Status = models.OperationStatus(status)
	op.CreatedAt = dbx.FromMillis(createdAt)
	op.LastAttemptAt = dbx.FromMillis(lastAttemptAt)
	return op, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, op *models.SyncOperation) error {
	query := `INSERT INTO operations (id, op_type, entity, payload, status, attempts, error, created_at, last_attempt_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, string(op.Type), op.Entity, op.Payload, string(op.Status),
		op.Attempts, op.Error, dbx.ToMillis(op.CreatedAt), dbx.ToMillis(op.LastAttemptAt))
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) BulkInsert(ctx context.Context, ops []*models.SyncOperation) error {
	for _, op := range ops {
		if err := r.Insert(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.SyncOperation, error) {
	query := `select ` + opColumns + ` from operations where id=?`
	op, err := scanOperation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select operation: %w", err)
	}
	return op, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `delete from operations where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
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

func (r *SQLiteRepository) ListByStatus(ctx context.Context, status models.OperationStatus) ([]*models.SyncOperation, error) {
	// rowid breaks ties between operations enqueued within one millisecond.
	query := `select ` + opColumns + ` from operations where status=? order by created_at asc, rowid asc`
	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to select operations: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	query := `update operations set status=?, error='' where id=?`
	result, err := r.db.ExecContext(ctx, query, string(models.StatusSynced), id)
	if err != nil {
		return fmt.Errorf("failed to mark operation synced: %w", err)
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

func (r *SQLiteRepository) RecordFailure(ctx context.Context, id string, errMsg string, attemptAt time.Time, terminal bool) error {
	status := models.StatusPending
	if terminal {
		status = models.StatusError
	}
	query := `update operations set attempts=attempts+1, last_attempt_at=?, error=?, status=? where id=?`
	result, err := r.db.ExecContext(ctx, query, dbx.ToMillis(attemptAt), errMsg, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
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

func (r *SQLiteRepository) Reset(ctx context.Context, id string) error {
	query := `update operations set status=?, attempts=0, error='', last_attempt_at=0 where id=? and status=?`
	result, err := r.db.ExecContext(ctx, query, string(models.StatusPending), id, string(models.StatusError))
	if err != nil {
		return fmt.Errorf("failed to reset operation: %w", err)
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

func (r *SQLiteRepository) DeleteByStatus(ctx context.Context, status models.OperationStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, `delete from operations where status=?`, string(status))
	if err != nil {
		return 0, fmt.Errorf("failed to delete operations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
