// Package operations persists queued sync mutations in the local store.
package operations

import (
	"context"
	"time"

	"github.com/mzhadan/syncbox/internal/models"
)

// Repository describes the persistence operations the queue processor needs
// for SyncOperation records. Implementations are backed by a local SQLite
// database; every write is atomic per record.
type Repository interface {
	// Insert stores a new operation.
	Insert(ctx context.Context, op *models.SyncOperation) error

	// BulkInsert stores several operations. Wrap the call in dbx.WithTx
	// when all-or-nothing visibility is required.
	BulkInsert(ctx context.Context, ops []*models.SyncOperation) error

	// GetByID returns the operation or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.SyncOperation, error)

	// Delete removes the record.
	Delete(ctx context.Context, id string) error

	// ListByStatus returns operations with the given status ordered by
	// creation time ascending (FIFO).
	ListByStatus(ctx context.Context, status models.OperationStatus) ([]*models.SyncOperation, error)

	// MarkSynced transitions the operation to its terminal success state.
	MarkSynced(ctx context.Context, id string) error

	// RecordFailure increments attempts, stamps the attempt time and stores
	// the error message; terminal controls whether status becomes error or
	// stays pending for a later retry.
	RecordFailure(ctx context.Context, id string, errMsg string, attemptAt time.Time, terminal bool) error

	// Reset moves an errored operation back to pending with a fresh retry
	// budget. Returns common.ErrNotFound if the id does not name an
	// errored operation.
	Reset(ctx context.Context, id string) error

	// DeleteByStatus removes all operations with the given status and
	// returns how many were removed.
	DeleteByStatus(ctx context.Context, status models.OperationStatus) (int64, error)
}
