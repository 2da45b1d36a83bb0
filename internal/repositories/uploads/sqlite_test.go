package uploads

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE uploads (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  content_type TEXT NOT NULL DEFAULT '',
  size INTEGER NOT NULL DEFAULT 0,
  file_ts INTEGER NOT NULL DEFAULT 0,
  blob BLOB NOT NULL,
  upload_state TEXT NOT NULL DEFAULT 'pending',
  target_id TEXT NOT NULL DEFAULT '',
  retry_count INTEGER NOT NULL DEFAULT 0,
  checksum TEXT NOT NULL DEFAULT '',
  nonce BLOB,
  error TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  last_attempt_at INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)

	return db
}

func pendingUpload(id string, createdAt time.Time) *models.UploadEntry {
	return &models.UploadEntry{
		ID:   id,
		Blob: []byte("plaintext"),
		Metadata: models.FileMetadata{
			Name: id + ".bin",
			Type: "application/octet-stream",
			Size: 9,
		},
		State:     models.StatePending,
		TargetID:  "rec-1",
		CreatedAt: createdAt,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Insert(ctx, pendingUpload("u1", created)))

	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.State)
	assert.Equal(t, []byte("plaintext"), got.Blob)
	assert.Equal(t, "u1.bin", got.Metadata.Name)
	assert.Equal(t, "rec-1", got.TargetID)
	assert.Nil(t, got.Nonce)

	_, err = r.GetByID(ctx, "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListByStates_ReadySetIsFIFO(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Insert(ctx, pendingUpload("b", base.Add(time.Second))))
	require.NoError(t, r.Insert(ctx, pendingUpload("a", base)))
	require.NoError(t, r.Insert(ctx, pendingUpload("c", base.Add(2*time.Second))))
	require.NoError(t, r.MarkEncrypted(ctx, "c", []byte("ct"), []byte("nonce"), "sum"))

	// completed entries are not part of the ready set
	require.NoError(t, r.Insert(ctx, pendingUpload("d", base)))
	require.NoError(t, r.MarkCompleted(ctx, "d"))

	got, err := r.ListByStates(ctx, models.StatePending, models.StateEncrypted)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, models.StateEncrypted, got[2].State)
}

func TestMarkEncrypted_ReplacesBlobAndCachesChecksum(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, pendingUpload("u1", time.Now())))
	require.NoError(t, r.MarkEncrypted(ctx, "u1", []byte("ciphertext"), []byte("nonce12"), "deadbeef"))

	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StateEncrypted, got.State)
	assert.Equal(t, []byte("ciphertext"), got.Blob)
	assert.Equal(t, []byte("nonce12"), got.Nonce)
	assert.Equal(t, "deadbeef", got.Checksum)
}

func TestMarkCompleted_DropsBlob(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, pendingUpload("u1", time.Now())))
	require.NoError(t, r.MarkCompleted(ctx, "u1"))

	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, got.State)
	assert.Empty(t, got.Blob)
}

func TestRecordFailure_RestingStateAndTerminal(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, pendingUpload("u1", time.Now())))

	at := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	require.NoError(t, r.RecordFailure(ctx, "u1", "timeout", at, models.StatePending, false))

	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.State)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "timeout", got.Error)
	assert.Equal(t, at, got.LastAttemptAt)

	require.NoError(t, r.RecordFailure(ctx, "u1", "timeout", at, models.StatePending, true))
	got, err = r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, got.State)
	assert.Equal(t, 2, got.RetryCount)
}

func TestRetry_RestoresRestingStage(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	// Failed before encryption: back to pending.
	require.NoError(t, r.Insert(ctx, pendingUpload("plain", time.Now())))
	require.NoError(t, r.RecordFailure(ctx, "plain", "x", time.Now(), models.StatePending, true))
	require.NoError(t, r.Retry(ctx, "plain"))
	got, err := r.GetByID(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.State)
	assert.Equal(t, 0, got.RetryCount)

	// Failed after encryption: back to encrypted.
	require.NoError(t, r.Insert(ctx, pendingUpload("enc", time.Now())))
	require.NoError(t, r.MarkEncrypted(ctx, "enc", []byte("ct"), []byte("n"), "sum"))
	require.NoError(t, r.RecordFailure(ctx, "enc", "x", time.Now(), models.StateEncrypted, true))
	require.NoError(t, r.Retry(ctx, "enc"))
	got, err = r.GetByID(ctx, "enc")
	require.NoError(t, err)
	assert.Equal(t, models.StateEncrypted, got.State)

	// Non-failed entries cannot be retried.
	require.ErrorIs(t, r.Retry(ctx, "plain"), common.ErrNotFound)
}

func TestReconcileInterrupted(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, pendingUpload("plain", time.Now())))
	require.NoError(t, r.Insert(ctx, pendingUpload("enc", time.Now())))
	require.NoError(t, r.MarkEncrypted(ctx, "enc", []byte("ct"), []byte("n"), "sum"))

	// Simulate rows left behind mid-flight by an older build.
	_, err := db.Exec(`update uploads set upload_state='uploading'`)
	require.NoError(t, err)

	n, err := r.ReconcileInterrupted(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := r.GetByID(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.State)

	got, err = r.GetByID(ctx, "enc")
	require.NoError(t, err)
	assert.Equal(t, models.StateEncrypted, got.State)
}

func TestDeleteByState(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, pendingUpload("a", time.Now())))
	require.NoError(t, r.Insert(ctx, pendingUpload("b", time.Now())))
	require.NoError(t, r.MarkCompleted(ctx, "a"))

	n, err := r.DeleteByState(ctx, models.StateCompleted)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = r.GetByID(ctx, "a")
	require.ErrorIs(t, err, common.ErrNotFound)
}
