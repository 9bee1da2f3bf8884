package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/journalsync/internal/flagx"
	"github.com/dmitrijs2005/journalsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like
// "400ms" or as integer nanoseconds. After parsing, values are copied into
// the runtime Config.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	LocalDSN            string         `json:"local_dsn"`
	SaveDebounce        timex.Duration `json:"save_debounce"`
	SyncDebounce        timex.Duration `json:"sync_debounce"`
	IdleSyncDelay       timex.Duration `json:"idle_sync_delay"`
	PendingPollInterval timex.Duration `json:"pending_poll_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file resolved
// via the -c/-config flags. If no file is given, nothing happens. Read or
// unmarshal errors panic (caller should recover if desired).
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

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.LocalDSN != "" {
		cfg.LocalDSN = jc.LocalDSN
	}
	if jc.SaveDebounce.Duration != 0 {
		cfg.SaveDebounce = jc.SaveDebounce.Duration
	}
	if jc.SyncDebounce.Duration != 0 {
		cfg.SyncDebounce = jc.SyncDebounce.Duration
	}
	if jc.IdleSyncDelay.Duration != 0 {
		cfg.IdleSyncDelay = jc.IdleSyncDelay.Duration
	}
	if jc.PendingPollInterval.Duration != 0 {
		cfg.PendingPollInterval = jc.PendingPollInterval.Duration
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
