package config

import (
	"path/filepath"
	"time"
)

// Config holds runtime settings for keeperlink.
//
// DatabasePath, BlobDir and StagingDir default to locations under DataDir
// once Normalize has run.
type Config struct {
	DataDir      string
	DatabasePath string
	BlobDir      string
	StagingDir   string

	// ListenAddr is where a provider accepts the getter. Port 0 picks a free
	// port; an unspecified host advertises the first LAN address.
	ListenAddr    string
	DialTimeout   time.Duration
	ShutdownGrace time.Duration

	// EventBufferSize bounds the per-subscriber transfer event queue. A
	// subscriber falling further behind is considered to have missed events.
	EventBufferSize int

	// ScryptWorkFactor is the log2 scrypt cost used to seal snapshots.
	ScryptWorkFactor int

	HousekeepingInterval time.Duration

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "keeperlink-data"
	c.ListenAddr = "0.0.0.0:0"
	c.DialTimeout = 10 * time.Second
	c.ShutdownGrace = 2 * time.Second
	c.EventBufferSize = 32
	c.ScryptWorkFactor = 18
	c.HousekeepingInterval = time.Minute
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// Normalize fills the derived paths left empty.
func (c *Config) Normalize() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "account.db")
	}
	if c.BlobDir == "" {
		c.BlobDir = filepath.Join(c.DataDir, "blobs")
	}
	if c.StagingDir == "" {
		c.StagingDir = filepath.Join(c.DataDir, "staging")
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	cfg.Normalize()
	return cfg
}
