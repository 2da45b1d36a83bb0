// Package app wires the sync engine together: local store, remote client,
// both queues, the response cache and the coordinator.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/mzhadan/syncbox/internal/common"
	"github.com/mzhadan/syncbox/internal/config"
	"github.com/mzhadan/syncbox/internal/coordinator"
	"github.com/mzhadan/syncbox/internal/cryptox"
	"github.com/mzhadan/syncbox/internal/localdb"
	"github.com/mzhadan/syncbox/internal/logging"
	"github.com/mzhadan/syncbox/internal/opqueue"
	"github.com/mzhadan/syncbox/internal/quota"
	"github.com/mzhadan/syncbox/internal/remote"
	"github.com/mzhadan/syncbox/internal/respcache"
	"github.com/mzhadan/syncbox/internal/upqueue"

	_ "modernc.org/sqlite"
)

const saltFile = "salt.bin"

// App is the assembled engine. Operations on the queues and cache are safe
// for concurrent use; Unlock must happen before any sync run touches staged
// uploads.
type App struct {
	cfg   *config.Config
	log   logging.Logger
	repos *localdb.Repositories

	Operations  *opqueue.Service
	Uploads     *upqueue.Service
	Cache       *respcache.Cache
	Coordinator *coordinator.Coordinator

	unlocked atomic.Bool
}

// New builds the engine from configuration. The local database and salt
// live under cfg.DataDir.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Nop{}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	repos, err := localdb.InitDatabase(ctx, filepath.Join(cfg.DataDir, cfg.DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("init local database: %w", err)
	}

	client := remote.NewHTTPClient(cfg.EndpointAddr, cfg.AuthToken)
	policy := cfg.RetryPolicy()

	var q quota.Reporter
	if cfg.QuotaBytes > 0 {
		q = &quota.DirReporter{Dir: cfg.DataDir, Total: cfg.QuotaBytes}
	}

	a := &App{cfg: cfg, log: log, repos: repos}
	a.Operations = opqueue.NewService(repos.Operations, client, policy, log.With("component", "opqueue"))
	a.Uploads = upqueue.NewService(repos.Uploads, client, nil, q, policy, cfg.Workers, log.With("component", "upqueue"))
	a.Cache = respcache.New(repos.Cache, cfg.CacheTTL, log.With("component", "respcache"))
	a.Coordinator = coordinator.New(a.Operations, a.Uploads, a.Cache, client,
		a.unlocked.Load, log.With("component", "coordinator"))
	a.Coordinator.OnReconnect(func(ctx context.Context) {
		if err := a.Cache.MarkAllStale(ctx); err != nil {
			log.Warn(ctx, "failed to mark cache stale on reconnect", "error", err)
		}
	})

	if err := a.Uploads.Recover(ctx); err != nil {
		_ = repos.Close()
		return nil, err
	}
	return a, nil
}

// Unlock derives the blob encryption key from the passphrase and opens the
// session gate. The salt is created on first use and persisted next to the
// database.
func (a *App) Unlock(ctx context.Context, passphrase []byte) error {
	defer common.WipeByteArray(passphrase)

	salt, err := a.loadOrCreateSalt()
	if err != nil {
		return err
	}
	a.Uploads.SetKey(cryptox.DeriveKey(passphrase, salt))
	a.unlocked.Store(true)
	a.log.Info(ctx, "session unlocked")
	return nil
}

// Unlocked reports whether the encryption key is installed.
func (a *App) Unlocked() bool {
	return a.unlocked.Load()
}

func (a *App) loadOrCreateSalt() ([]byte, error) {
	path := filepath.Join(a.cfg.DataDir, saltFile)
	salt, err := os.ReadFile(path)
	if err == nil {
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	salt = common.GenerateRandByteArray(16)
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}

// Run starts the background loops and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	go a.Coordinator.StartTimer(ctx, a.cfg.SyncInterval)
	go a.Coordinator.StartOnlineStatusWatcher(ctx, a.cfg.OnlineCheckInterval)
	<-ctx.Done()
}

// Close releases the local store.
func (a *App) Close() error {
	return a.repos.Close()
}
