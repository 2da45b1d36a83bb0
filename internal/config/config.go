// Package config holds runtime settings for the syncbox engine and loads
// them from defaults, an optional JSON file and command-line flags, in that
// precedence order.
package config

import (
	"time"

	"github.com/mzhadan/syncbox/internal/backoff"
	"github.com/mzhadan/syncbox/internal/respcache"
	"github.com/mzhadan/syncbox/internal/upqueue"
)

// Config holds runtime settings for the sync engine.
//
// Units: intervals and delays are time.Duration values; QuotaBytes is a byte
// count, zero meaning unlimited.
type Config struct {
	EndpointAddr        string
	AuthToken           string
	DataDir             string
	DatabaseFile        string
	LogFile             string
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration
	Workers             int
	RetryBaseDelay      time.Duration
	RetryMultiplier     float64
	RetryMaxDelay       time.Duration
	RetryMaxAttempts    int
	CacheTTL            time.Duration
	QuotaBytes          uint64
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = "http://127.0.0.1:8080"
	c.DataDir = "."
	c.DatabaseFile = "syncbox.db"
	c.SyncInterval = 30 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.Workers = upqueue.DefaultWorkers
	c.RetryBaseDelay = backoff.DefaultBaseDelay
	c.RetryMultiplier = backoff.DefaultMultiplier
	c.RetryMaxDelay = backoff.DefaultCap
	c.RetryMaxAttempts = backoff.DefaultMaxAttempts
	c.CacheTTL = respcache.DefaultTTL
}

// RetryPolicy builds the backoff policy shared by both queues.
func (c *Config) RetryPolicy() backoff.Policy {
	return backoff.NewPolicy(c.RetryBaseDelay, c.RetryMultiplier, c.RetryMaxDelay, c.RetryMaxAttempts)
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
