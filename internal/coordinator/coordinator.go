// Package coordinator drives sync runs: it serializes triggers from the
// timer, connectivity changes and manual requests, fans the run out over the
// operation and upload queues and broadcasts the outcome to observers.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/logging"
	"github.com/mzhadan/syncbox/internal/models"
)

// Mode is the coordinator's view of remote reachability.
type Mode string

const (
	ModeUnknown Mode = "unknown"
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Trigger names what started a sync run.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerTimer      Trigger = "timer"
	TriggerReconnect  Trigger = "reconnect"
	TriggerBackground Trigger = "background"
)

// Runner is a queue that can drain itself. Both queues satisfy it.
type Runner interface {
	ProcessAll(ctx context.Context) (models.Stats, error)
}

// Sweeper evicts expired cache entries at the end of a run.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Pinger answers whether the remote is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionGate reports whether background triggers may start a run. Manual
// runs bypass the gate.
type SessionGate func() bool

// Report summarizes one sync run.
type Report struct {
	Trigger      Trigger
	StartedAt    time.Time
	FinishedAt   time.Time
	Operations   models.Stats
	Uploads      models.Stats
	CacheEvicted int64
}

// Combined merges the two queues' counters.
func (r *Report) Combined() models.Stats {
	var s models.Stats
	s.Add(r.Operations)
	s.Add(r.Uploads)
	return s
}

// Coordinator serializes sync runs. At most one run is in flight at any
// instant; concurrent triggers are refused, not queued.
type Coordinator struct {
	ops    Runner
	ups    Runner
	cache  Sweeper
	pinger Pinger
	gate   SessionGate
	log    logging.Logger
	now    func() time.Time

	pingTimeout time.Duration

	mu      sync.Mutex
	running bool
	mode    Mode

	obsMu       sync.Mutex
	observers   []func(Report)
	onReconnect []func(context.Context)
}

// New builds a coordinator over the two queues. cache, pinger and gate may
// be nil; a nil gate admits every background trigger. A nil logger falls
// back to a no-op one.
func New(ops, ups Runner, cache Sweeper, pinger Pinger, gate SessionGate, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop{}
	}
	return &Coordinator{
		ops:         ops,
		ups:         ups,
		cache:       cache,
		pinger:      pinger,
		gate:        gate,
		log:         log,
		now:         time.Now,
		pingTimeout: 3 * time.Second,
		mode:        ModeUnknown,
	}
}

// Subscribe registers an observer invoked after every completed run. The
// callback runs on the run's goroutine and must not block.
func (c *Coordinator) Subscribe(fn func(Report)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// OnReconnect registers a hook invoked when the remote becomes reachable
// after a period offline, before the reconnect-triggered run starts.
func (c *Coordinator) OnReconnect(fn func(context.Context)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

// Mode returns the last observed reachability state.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// RunNow starts a sync run for a manual trigger. If a run is already in
// flight it returns common.ErrSyncInProgress immediately.
func (c *Coordinator) RunNow(ctx context.Context) (*Report, error) {
	return c.run(ctx, TriggerManual)
}

func (c *Coordinator) run(ctx context.Context, trigger Trigger) (*Report, error) {
	if !c.begin() {
		return nil, common.ErrSyncInProgress
	}
	defer c.end()

	report := &Report{Trigger: trigger, StartedAt: c.now()}
	c.log.Info(ctx, "sync run started", "trigger", trigger)

	opStats, err := c.ops.ProcessAll(ctx)
	if err != nil {
		return nil, err
	}
	report.Operations = opStats

	upStats, err := c.ups.ProcessAll(ctx)
	if err != nil {
		return nil, err
	}
	report.Uploads = upStats

	if c.cache != nil {
		n, err := c.cache.SweepExpired(ctx)
		if err != nil {
			return nil, err
		}
		report.CacheEvicted = n
	}

	report.FinishedAt = c.now()
	combined := report.Combined()
	c.log.Info(ctx, "sync run finished", "trigger", trigger,
		"total", combined.Total, "succeeded", combined.Succeeded,
		"failed", combined.Failed, "pending", combined.Pending,
		"cache_evicted", report.CacheEvicted)
	c.notify(*report)
	return report, nil
}

// triggerBackground starts a gated run. Refused and already-running triggers
// are logged, not surfaced; a run failure is surfaced only to the log.
func (c *Coordinator) triggerBackground(ctx context.Context, trigger Trigger) {
	if c.gate != nil && !c.gate() {
		c.log.Debug(ctx, "background sync skipped, session gate closed", "trigger", trigger)
		return
	}
	if _, err := c.run(ctx, trigger); err != nil {
		if errors.Is(err, common.ErrSyncInProgress) {
			c.log.Debug(ctx, "background sync skipped, run in flight", "trigger", trigger)
			return
		}
		c.log.Error(ctx, "background sync failed", "trigger", trigger, "error", err)
	}
}

// RegisterBackgroundTrigger starts a run, subject to the session gate, every
// time the platform signal channel delivers. Returns once ctx is cancelled
// or the channel is closed. Blocks; run it on its own goroutine.
func (c *Coordinator) RegisterBackgroundTrigger(ctx context.Context, signal <-chan struct{}) {
	for {
		select {
		case _, ok := <-signal:
			if !ok {
				return
			}
			c.triggerBackground(ctx, TriggerBackground)
		case <-ctx.Done():
			return
		}
	}
}

// StartTimer runs the queue on a fixed interval until ctx is cancelled.
// Blocks; run it on its own goroutine.
func (c *Coordinator) StartTimer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.triggerBackground(ctx, TriggerTimer)
		case <-ctx.Done():
			return
		}
	}
}

// StartOnlineStatusWatcher pings the remote on a fixed interval and tracks
// reachability. An offline to online transition fires the reconnect hooks
// and starts a run. Blocks; run it on its own goroutine.
func (c *Coordinator) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) checkOnline(ctx context.Context) {
	if c.pinger == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	err := c.pinger.Ping(pingCtx)
	cancel()

	if err != nil {
		if c.setMode(ModeOffline) != ModeOffline {
			c.log.Warn(ctx, "remote unreachable, switching offline", "error", err)
		}
		return
	}
	// Only a genuine offline to online transition counts as a reconnect;
	// the first successful ping after startup does not.
	if c.setMode(ModeOnline) == ModeOffline {
		c.log.Info(ctx, "remote reachable, switching online")
		c.fireReconnect(ctx)
		c.triggerBackground(ctx, TriggerReconnect)
	}
}

// setMode records the new mode and returns the previous one.
func (c *Coordinator) setMode(mode Mode) Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.mode
	c.mode = mode
	return prev
}

func (c *Coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *Coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

func (c *Coordinator) notify(r Report) {
	c.obsMu.Lock()
	observers := make([]func(Report), len(c.observers))
	copy(observers, c.observers)
	c.obsMu.Unlock()
	for _, fn := range observers {
		fn(r)
	}
}

func (c *Coordinator) fireReconnect(ctx context.Context) {
	c.obsMu.Lock()
	hooks := make([]func(context.Context), len(c.onReconnect))
	copy(hooks, c.onReconnect)
	c.obsMu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
}
