// Package config handles configuration for the client engine, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the journalsync client engine.
//
// Durations:
//   - SaveDebounce: idle time after the last edit before a save fires.
//   - SyncDebounce: collapse window for non-immediate sync intents.
//   - IdleSyncDelay: wait before an idle-triggered sync checks pending ops.
//   - PendingPollInterval: how often the pending-ops summary is recomputed.
//   - RequestTimeout: ceiling for any single remote call.
type Config struct {
	ServerEndpointAddr  string
	LocalDSN            string
	SaveDebounce        time.Duration
	SyncDebounce        time.Duration
	IdleSyncDelay       time.Duration
	PendingPollInterval time.Duration
	RequestTimeout      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.LocalDSN = "journal.db"
	c.SaveDebounce = 400 * time.Millisecond
	c.SyncDebounce = 2 * time.Second
	c.IdleSyncDelay = 4 * time.Second
	c.PendingPollInterval = 5 * time.Second
	c.RequestTimeout = 30 * time.Second
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
