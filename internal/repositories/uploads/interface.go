// Package uploads persists staged binary payloads in the local store.
package uploads

import (
	"context"
	"time"

	"github.com/mzhadan/syncbox/internal/models"
)

// Repository describes persistence and workflow operations for UploadEntry
// records. Implementations are backed by a local SQLite database.
//
// The transient "uploading" state is never written by the worker pool; see
// ReconcileInterrupted for the recovery path covering older data.
type Repository interface {
	// Insert stores a new entry.
	Insert(ctx context.Context, e *models.UploadEntry) error

	// GetByID returns the entry or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.UploadEntry, error)

	// Delete removes the record.
	Delete(ctx context.Context, id string) error

	// ListByStates returns entries in any of the given states ordered by
	// creation time ascending (FIFO).
	ListByStates(ctx context.Context, states ...models.UploadState) ([]*models.UploadEntry, error)

	// MarkEncrypted replaces the plaintext blob with ciphertext, records
	// the nonce and content checksum and moves the entry to the encrypted
	// stage, all in one statement.
	MarkEncrypted(ctx context.Context, id string, ciphertext, nonce []byte, checksum string) error

	// MarkCompleted transitions the entry to its terminal success state and
	// drops the blob, which the entry owns exclusively.
	MarkCompleted(ctx context.Context, id string) error

	// RecordFailure increments the retry count, stamps the attempt time and
	// stores the error message; terminal controls whether the state becomes
	// failed or falls back to the given restingState for a later retry.
	RecordFailure(ctx context.Context, id string, errMsg string, attemptAt time.Time, restingState models.UploadState, terminal bool) error

	// Retry moves a failed entry back to its resting stage (encrypted when
	// a nonce is recorded, pending otherwise) with a fresh retry budget.
	Retry(ctx context.Context, id string) error

	// ReconcileInterrupted returns any entry persisted in the transient
	// uploading state to its resting stage. Called once at startup.
	ReconcileInterrupted(ctx context.Context) (int64, error)

	// DeleteByState removes all entries in the given state and returns how
	// many were removed.
	DeleteByState(ctx context.Context, state models.UploadState) (int64, error)
}
