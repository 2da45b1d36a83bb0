package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	stats models.Stats
	err   error
	block chan struct{}
}

func (r *fakeRunner) ProcessAll(ctx context.Context) (models.Stats, error) {
	r.mu.Lock()
	r.calls++
	block := r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	return r.stats, r.err
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeSweeper struct{ removed int64 }

func (s *fakeSweeper) SweepExpired(ctx context.Context) (int64, error) { return s.removed, nil }

type fakePinger struct{ err atomic.Value }

func (p *fakePinger) Ping(ctx context.Context) error {
	if v := p.err.Load(); v != nil {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

func TestRunNowAggregatesReport(t *testing.T) {
	ops := &fakeRunner{stats: models.Stats{Total: 3, Succeeded: 2, Failed: 1}}
	ups := &fakeRunner{stats: models.Stats{Total: 1, Succeeded: 1}}
	c := New(ops, ups, &fakeSweeper{removed: 4}, nil, nil, nil)

	report, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, report.Trigger)
	assert.Equal(t, ops.stats, report.Operations)
	assert.Equal(t, ups.stats, report.Uploads)
	assert.EqualValues(t, 4, report.CacheEvicted)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
	assert.Equal(t, models.Stats{Total: 4, Succeeded: 3, Failed: 1}, report.Combined())
}

func TestRunNowRefusedWhileRunning(t *testing.T) {
	block := make(chan struct{})
	ops := &fakeRunner{block: block}
	c := New(ops, &fakeRunner{}, nil, nil, nil, nil)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := c.RunNow(context.Background())
		done <- err
	}()
	<-started

	// Wait until the first run holds the guard.
	require.Eventually(t, func() bool { return ops.callCount() == 1 }, time.Second, time.Millisecond)

	_, err := c.RunNow(context.Background())
	assert.ErrorIs(t, err, common.ErrSyncInProgress)

	close(block)
	require.NoError(t, <-done)

	// The guard is released once the run finishes.
	_, err = c.RunNow(context.Background())
	require.NoError(t, err)
}

func TestSubscribeReceivesReports(t *testing.T) {
	c := New(&fakeRunner{stats: models.Stats{Total: 1, Succeeded: 1}}, &fakeRunner{}, nil, nil, nil, nil)

	var got []Report
	c.Subscribe(func(r Report) { got = append(got, r) })

	_, err := c.RunNow(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Operations.Total)
}

func TestSessionGateBlocksBackgroundTrigger(t *testing.T) {
	ops := &fakeRunner{}
	open := false
	c := New(ops, &fakeRunner{}, nil, nil, func() bool { return open }, nil)

	c.triggerBackground(context.Background(), TriggerTimer)
	assert.Zero(t, ops.callCount())

	open = true
	c.triggerBackground(context.Background(), TriggerTimer)
	assert.Equal(t, 1, ops.callCount())

	// Manual runs bypass the gate.
	open = false
	_, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ops.callCount())
}

func TestReconnectFiresHooksAndRun(t *testing.T) {
	ops := &fakeRunner{}
	pinger := &fakePinger{}
	c := New(ops, &fakeRunner{}, nil, pinger, nil, nil)

	hooks := 0
	c.OnReconnect(func(ctx context.Context) { hooks++ })

	ctx := context.Background()

	// First successful ping moves unknown to online without a reconnect run.
	assert.Equal(t, ModeUnknown, c.Mode())
	c.checkOnline(ctx)
	assert.Equal(t, ModeOnline, c.Mode())
	firstRuns := ops.callCount()

	// Going offline does not run anything.
	pinger.err.Store(common.ErrUnavailable)
	c.checkOnline(ctx)
	assert.Equal(t, ModeOffline, c.Mode())
	assert.Equal(t, firstRuns, ops.callCount())

	// Coming back online fires the hooks and a reconnect run.
	pinger.err = atomic.Value{}
	c.checkOnline(ctx)
	assert.Equal(t, ModeOnline, c.Mode())
	assert.Equal(t, 1, hooks)
	assert.Equal(t, firstRuns+1, ops.callCount())
}

func TestRegisterBackgroundTrigger(t *testing.T) {
	ops := &fakeRunner{}
	c := New(ops, &fakeRunner{}, nil, nil, nil, nil)

	signal := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.RegisterBackgroundTrigger(context.Background(), signal)
		close(done)
	}()

	signal <- struct{}{}
	signal <- struct{}{}
	close(signal)
	<-done

	assert.Equal(t, 2, ops.callCount())
}

func TestBackgroundRunFailureNotRaised(t *testing.T) {
	ops := &fakeRunner{err: common.ErrUnavailable}
	c := New(ops, &fakeRunner{}, nil, nil, nil, nil)

	// Must not panic and must not propagate anywhere.
	c.triggerBackground(context.Background(), TriggerTimer)
	assert.Equal(t, 1, ops.callCount())
}
