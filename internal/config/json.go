package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/keeperlink/internal/flagx"
	"github.com/dmitrijs2005/keeperlink/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-aware fields let a file override only what it mentions.
type JsonConfig struct {
	DataDir              string          `json:"data_dir"`
	DatabasePath         string          `json:"database_path"`
	BlobDir              string          `json:"blob_dir"`
	StagingDir           string          `json:"staging_dir"`
	ListenAddr           string          `json:"listen_addr"`
	DialTimeout          *timex.Duration `json:"dial_timeout"`
	ShutdownGrace        *timex.Duration `json:"shutdown_grace"`
	EventBufferSize      int             `json:"event_buffer_size"`
	ScryptWorkFactor     int             `json:"scrypt_work_factor"`
	HousekeepingInterval *timex.Duration `json:"housekeeping_interval"`
	LogLevel             string          `json:"log_level"`
	LogFormat            string          `json:"log_format"`
}

// parseJson overlays cfg with values loaded from the JSON file named by
// flagx.JsonConfigFlags. Read or decode errors panic; intended usage is
// defaults -> parseJson -> parseFlags.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.BlobDir, jc.BlobDir)
	setString(&cfg.StagingDir, jc.StagingDir)
	setString(&cfg.ListenAddr, jc.ListenAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)

	if jc.DialTimeout != nil {
		cfg.DialTimeout = jc.DialTimeout.Duration
	}
	if jc.ShutdownGrace != nil {
		cfg.ShutdownGrace = jc.ShutdownGrace.Duration
	}
	if jc.HousekeepingInterval != nil {
		cfg.HousekeepingInterval = jc.HousekeepingInterval.Duration
	}
	if jc.EventBufferSize > 0 {
		cfg.EventBufferSize = jc.EventBufferSize
	}
	if jc.ScryptWorkFactor > 0 {
		cfg.ScryptWorkFactor = jc.ScryptWorkFactor
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
