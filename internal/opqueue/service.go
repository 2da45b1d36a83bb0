// Package opqueue implements the durable mutation queue: create, update and
// delete operations recorded while offline and replayed against the remote
// API in arrival order.
package opqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mzhadan/syncbox/internal/backoff"
	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/logging"
	"github.com/mzhadan/syncbox/internal/models"
	"github.com/mzhadan/syncbox/internal/remote"
	"github.com/mzhadan/syncbox/internal/repositories/operations"
)

// Service owns the operation queue workflow: admission, ordered dispatch,
// retry bookkeeping and manual recovery of errored items.
type Service struct {
	repo   operations.Repository
	client remote.Client
	policy backoff.Policy
	log    logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewService wires the queue over its repository and the remote client. A nil
// logger falls back to a no-op one.
func NewService(repo operations.Repository, client remote.Client, policy backoff.Policy, log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop{}
	}
	return &Service{
		repo:    repo,
		client:  client,
		policy:  policy,
		log:     log,
		now:     time.Now,
		claimed: make(map[string]struct{}),
	}
}

// Enqueue validates and persists a new mutation. Update and delete payloads
// must carry the id of the record they target; a payload without one is
// refused with common.ErrPrecondition before anything is stored.
func (s *Service) Enqueue(ctx context.Context, typ models.OperationType, entity string, payload []byte) (*models.SyncOperation, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownOperation, typ)
	}
	if typ != models.OperationCreate && models.TargetIDFromPayload(payload) == "" {
		return nil, fmt.Errorf("%w: %s payload has no target id", common.ErrPrecondition, typ)
	}

	op := &models.SyncOperation{
		ID:        uuid.NewString(),
		Type:      typ,
		Entity:    entity,
		Payload:   payload,
		Status:    models.StatusPending,
		CreatedAt: s.now(),
	}
	if err := s.repo.Insert(ctx, op); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	s.log.Debug(ctx, "operation enqueued", "id", op.ID, "type", op.Type, "entity", op.Entity)
	return op, nil
}

// ListReady returns the pending operations whose retry delay has elapsed, in
// arrival order. Items claimed by a running ProcessAll are excluded.
func (s *Service) ListReady(ctx context.Context) ([]*models.SyncOperation, error) {
	pending, err := s.repo.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ready := pending[:0]
	for _, op := range pending {
		if !s.isClaimed(op.ID) && s.policy.IsReady(op.Attempts, op.LastAttemptAt, now) {
			ready = append(ready, op)
		}
	}
	return ready, nil
}

// ProcessAll dispatches every ready operation sequentially, oldest first,
// and returns per-run counters. A failure of one item never blocks the
// others; only the error list on the stats reflects it.
func (s *Service) ProcessAll(ctx context.Context) (models.Stats, error) {
	var stats models.Stats

	ready, err := s.ListReady(ctx)
	if err != nil {
		return stats, fmt.Errorf("list ready: %w", err)
	}
	if len(ready) == 0 {
		return stats, nil
	}
	s.log.Info(ctx, "processing operation queue", "ready", len(ready))

	for _, op := range ready {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if !s.claim(op.ID) {
			continue
		}
		err := s.processOne(ctx, op)
		s.release(op.ID)

		stats.Total++
		switch {
		case err == nil:
			stats.Succeeded++
		case common.IsTransient(err) && !s.policy.Exhausted(op.Attempts+1):
			stats.Pending++
		default:
			stats.Failed++
		}
	}
	return stats, nil
}

// processOne dispatches a single operation and records the outcome. The
// returned error is the dispatch error, already classified by the remote
// client.
func (s *Service) processOne(ctx context.Context, op *models.SyncOperation) error {
	err := s.dispatch(ctx, op)
	if err == nil {
		if mErr := s.repo.MarkSynced(ctx, op.ID); mErr != nil {
			return mErr
		}
		s.log.Debug(ctx, "operation synced", "id", op.ID)
		return nil
	}

	attempts := op.Attempts + 1
	terminal := !common.IsTransient(err) || s.policy.Exhausted(attempts)
	if rErr := s.repo.RecordFailure(ctx, op.ID, err.Error(), s.now(), terminal); rErr != nil {
		return rErr
	}
	if terminal {
		s.log.Error(ctx, "operation failed", "id", op.ID, "attempts", attempts, "error", err)
	} else {
		s.log.Warn(ctx, "operation deferred", "id", op.ID, "attempts", attempts,
			"next_in", s.policy.Delay(attempts), "error", err)
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, op *models.SyncOperation) error {
	switch op.Type {
	case models.OperationCreate:
		return s.client.Create(ctx, op.Entity, op.Payload)
	case models.OperationUpdate:
		return s.client.Update(ctx, op.Entity, models.TargetIDFromPayload(op.Payload), op.Payload)
	case models.OperationDelete:
		return s.client.Delete(ctx, op.Entity, models.TargetIDFromPayload(op.Payload))
	default:
		return fmt.Errorf("%w: %q", common.ErrUnknownOperation, op.Type)
	}
}

// Reset returns an errored operation to the pending queue with a fresh retry
// budget.
func (s *Service) Reset(ctx context.Context, id string) error {
	if err := s.repo.Reset(ctx, id); err != nil {
		return err
	}
	s.log.Info(ctx, "operation reset", "id", id)
	return nil
}

// ListPending returns every pending operation in arrival order, including
// those still waiting out a retry delay.
func (s *Service) ListPending(ctx context.Context) ([]*models.SyncOperation, error) {
	return s.repo.ListByStatus(ctx, models.StatusPending)
}

// ListFailed returns operations that exhausted their retry budget or were
// rejected outright.
func (s *Service) ListFailed(ctx context.Context) ([]*models.SyncOperation, error) {
	return s.repo.ListByStatus(ctx, models.StatusError)
}

// ClearSynced removes successfully synced operations from the store and
// returns how many were removed.
func (s *Service) ClearSynced(ctx context.Context) (int64, error) {
	return s.repo.DeleteByStatus(ctx, models.StatusSynced)
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
