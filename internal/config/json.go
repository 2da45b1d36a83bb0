package config

import (
	"encoding/json"
	"os"

	"github.com/mzhadan/syncbox/internal/flagx"
	"github.com/mzhadan/syncbox/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	EndpointAddr        string         `json:"endpoint_addr"`
	AuthToken           string         `json:"auth_token"`
	DataDir             string         `json:"data_dir"`
	DatabaseFile        string         `json:"database_file"`
	LogFile             string         `json:"log_file"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	Workers             int            `json:"workers"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay"`
	RetryMultiplier     float64        `json:"retry_multiplier"`
	RetryMaxDelay       timex.Duration `json:"retry_max_delay"`
	RetryMaxAttempts    int            `json:"retry_max_attempts"`
	CacheTTL            timex.Duration `json:"cache_ttl"`
	QuotaBytes          uint64         `json:"quota_bytes"`
}

// parseJson overlays Config with values loaded from a JSON file. The path
// comes from the -c or -config flag via flagx.JsonConfigFlags; with neither
// flag set, no JSON is loaded. Fields absent from the file keep their
// current values. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.EndpointAddr != "" {
		cfg.EndpointAddr = jc.EndpointAddr
	}
	if jc.AuthToken != "" {
		cfg.AuthToken = jc.AuthToken
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.DatabaseFile != "" {
		cfg.DatabaseFile = jc.DatabaseFile
	}
	if jc.LogFile != "" {
		cfg.LogFile = jc.LogFile
	}
	if jc.SyncInterval.Duration > 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.Workers > 0 {
		cfg.Workers = jc.Workers
	}
	if jc.RetryBaseDelay.Duration > 0 {
		cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	}
	if jc.RetryMultiplier > 0 {
		cfg.RetryMultiplier = jc.RetryMultiplier
	}
	if jc.RetryMaxDelay.Duration > 0 {
		cfg.RetryMaxDelay = jc.RetryMaxDelay.Duration
	}
	if jc.RetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = jc.RetryMaxAttempts
	}
	if jc.CacheTTL.Duration > 0 {
		cfg.CacheTTL = jc.CacheTTL.Duration
	}
	if jc.QuotaBytes > 0 {
		cfg.QuotaBytes = jc.QuotaBytes
	}
}
