// Package upqueue implements the parallel upload queue: binary payloads are
// staged locally, encrypted at rest and pushed to the remote API by a
// bounded worker pool.
package upqueue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mzhadan/syncbox/internal/backoff"
	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/cryptox"
	"github.com/mzhadan/syncbox/internal/logging"
	"github.com/mzhadan/syncbox/internal/models"
	"github.com/mzhadan/syncbox/internal/quota"
	"github.com/mzhadan/syncbox/internal/remote"
	"github.com/mzhadan/syncbox/internal/repositories/uploads"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds the upload pool when no worker count is configured.
const DefaultWorkers = 3

// Service owns the upload workflow: quota-checked admission, the encrypt
// stage, parallel dispatch and retry bookkeeping.
type Service struct {
	repo    uploads.Repository
	client  remote.Client
	key     []byte
	quota   quota.Reporter
	policy  backoff.Policy
	workers int
	log     logging.Logger
	now     func() time.Time

	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewService wires the queue over its repository and the remote client. The
// key encrypts staged blobs; workers bounds pool size (DefaultWorkers when
// zero). A nil quota reporter disables admission checks, a nil logger falls
// back to a no-op one.
func NewService(repo uploads.Repository, client remote.Client, key []byte, q quota.Reporter, policy backoff.Policy, workers int, log logging.Logger) *Service {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Service{
		repo:    repo,
		client:  client,
		key:     key,
		quota:   q,
		policy:  policy,
		workers: workers,
		log:     log,
		now:     time.Now,
		claimed: make(map[string]struct{}),
	}
}

// SetKey installs the encryption key. Called once after the user unlocks
// the session; runs started before that are kept out by the session gate.
func (s *Service) SetKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
}

func (s *Service) encryptionKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Enqueue admits a new upload. The blob is stored as-is in the pending
// stage; encryption happens on the next queue run. Admission fails with
// common.ErrQuotaExceeded when the blob would push local usage past the
// configured budget.
func (s *Service) Enqueue(ctx context.Context, blob []byte, meta models.FileMetadata, targetID string) (*models.UploadEntry, error) {
	if err := s.admit(ctx, uint64(len(blob))); err != nil {
		return nil, err
	}

	e := &models.UploadEntry{
		ID:        uuid.NewString(),
		Blob:      blob,
		Metadata:  meta,
		State:     models.StatePending,
		TargetID:  targetID,
		CreatedAt: s.now(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("enqueue upload: %w", err)
	}
	s.log.Debug(ctx, "upload enqueued", "id", e.ID, "name", meta.Name, "size", meta.Size)
	return e, nil
}

func (s *Service) admit(ctx context.Context, size uint64) error {
	if s.quota == nil {
		return nil
	}
	used, total, err := s.quota.Usage(ctx)
	if err != nil {
		return fmt.Errorf("quota check: %w", err)
	}
	if total > 0 && used+size > total {
		return fmt.Errorf("%w: %d of %d bytes used, %d requested", common.ErrQuotaExceeded, used, total, size)
	}
	return nil
}

// Recover returns entries stranded mid-flight by an earlier crash to their
// resting stage. Called once before the first queue run.
func (s *Service) Recover(ctx context.Context) error {
	n, err := s.repo.ReconcileInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("reconcile interrupted uploads: %w", err)
	}
	if n > 0 {
		s.log.Warn(ctx, "recovered interrupted uploads", "count", n)
	}
	return nil
}

// ProcessAll runs every ready entry through its remaining stages using at
// most the configured number of workers, and returns per-run counters.
func (s *Service) ProcessAll(ctx context.Context) (models.Stats, error) {
	var stats models.Stats

	ready, err := s.listReady(ctx)
	if err != nil {
		return stats, fmt.Errorf("list ready uploads: %w", err)
	}
	if len(ready) == 0 {
		return stats, nil
	}
	s.log.Info(ctx, "processing upload queue", "ready", len(ready), "workers", s.workers)

	var statsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, e := range ready {
		if !s.claim(e.ID) {
			continue
		}
		g.Go(func() error {
			defer s.release(e.ID)
			err := s.processOne(gctx, e)

			statsMu.Lock()
			defer statsMu.Unlock()
			stats.Total++
			switch {
			case err == nil:
				stats.Succeeded++
			case common.IsTransient(err) && !s.policy.Exhausted(e.RetryCount+1):
				stats.Pending++
			default:
				stats.Failed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Service) listReady(ctx context.Context) ([]*models.UploadEntry, error) {
	entries, err := s.repo.ListByStates(ctx, models.StatePending, models.StateEncrypted)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ready := entries[:0]
	for _, e := range entries {
		if !s.isClaimed(e.ID) && s.policy.IsReady(e.RetryCount, e.LastAttemptAt, now) {
			ready = append(ready, e)
		}
	}
	return ready, nil
}

// processOne advances a single entry through the encrypt and upload stages.
// The transient uploading state lives only on this in-memory copy; a crash
// leaves the row at its last durable stage.
func (s *Service) processOne(ctx context.Context, e *models.UploadEntry) error {
	if e.State == models.StatePending {
		if err := s.encrypt(ctx, e); err != nil {
			return s.fail(ctx, e, err)
		}
	}
	if e.TargetID == "" {
		return s.fail(ctx, e, fmt.Errorf("%w: upload has no target id", common.ErrPrecondition))
	}

	e.State = models.StateUploading
	err := s.client.Upload(ctx, &remote.UploadRequest{
		ID:          e.ID,
		Name:        e.Metadata.Name,
		ContentType: e.Metadata.Type,
		TargetID:    e.TargetID,
		Checksum:    e.Checksum,
		Body:        e.Blob,
	})
	if err != nil {
		return s.fail(ctx, e, err)
	}

	if err := s.repo.MarkCompleted(ctx, e.ID); err != nil {
		return err
	}
	s.log.Debug(ctx, "upload completed", "id", e.ID, "name", e.Metadata.Name)
	return nil
}

// encrypt seals the plaintext blob, records its checksum and persists the
// encrypted stage. The checksum covers the ciphertext, which is what the
// remote receives.
func (s *Service) encrypt(ctx context.Context, e *models.UploadEntry) error {
	ciphertext, nonce, err := cryptox.EncryptBlob(e.Blob, s.encryptionKey())
	if err != nil {
		return fmt.Errorf("encrypt upload: %w", err)
	}
	sum := sha256.Sum256(ciphertext)
	checksum := hex.EncodeToString(sum[:])

	if err := s.repo.MarkEncrypted(ctx, e.ID, ciphertext, nonce, checksum); err != nil {
		return err
	}
	e.Blob = ciphertext
	e.Nonce = nonce
	e.Checksum = checksum
	e.State = models.StateEncrypted
	return nil
}

// fail records the outcome of a failed stage and returns the original error.
func (s *Service) fail(ctx context.Context, e *models.UploadEntry, cause error) error {
	resting := models.StatePending
	if len(e.Nonce) > 0 {
		resting = models.StateEncrypted
	}
	attempts := e.RetryCount + 1
	terminal := !common.IsTransient(cause) || s.policy.Exhausted(attempts)

	if err := s.repo.RecordFailure(ctx, e.ID, cause.Error(), s.now(), resting, terminal); err != nil {
		return err
	}
	if terminal {
		s.log.Error(ctx, "upload failed", "id", e.ID, "attempts", attempts, "error", cause)
	} else {
		s.log.Warn(ctx, "upload deferred", "id", e.ID, "attempts", attempts,
			"next_in", s.policy.Delay(attempts), "error", cause)
	}
	return cause
}

// Retry moves a failed entry back to its resting stage with a fresh retry
// budget.
func (s *Service) Retry(ctx context.Context, id string) error {
	if err := s.repo.Retry(ctx, id); err != nil {
		return err
	}
	s.log.Info(ctx, "upload retry requested", "id", id)
	return nil
}

// ListPending returns entries still waiting to complete, in arrival order,
// including those waiting out a retry delay.
func (s *Service) ListPending(ctx context.Context) ([]*models.UploadEntry, error) {
	return s.repo.ListByStates(ctx, models.StatePending, models.StateEncrypted)
}

// ListFailed returns entries that exhausted their retry budget or hit an
// unretryable error.
func (s *Service) ListFailed(ctx context.Context) ([]*models.UploadEntry, error) {
	return s.repo.ListByStates(ctx, models.StateFailed)
}

// ClearCompleted removes completed entries and returns how many were
// removed.
func (s *Service) ClearCompleted(ctx context.Context) (int64, error) {
	return s.repo.DeleteByState(ctx, models.StateCompleted)
}

func (s *Service) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[id]; ok {
		return false
	}
	s.claimed[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, id)
}

func (s *Service) isClaimed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claimed[id]
	return ok
}
