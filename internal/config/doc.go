// Package config loads runtime configuration for the keeperlink CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via -c / -config or the
//     KEEPERLINK_CONFIG environment variable.
//  3. Command-line flags (see parseFlags), which override earlier values.
//  4. Normalize derives the database, blob and staging paths from DataDir
//     when they were left empty.
//
// Supported flags
//
//	-d string   data directory (account database + blobs)
//	-b string   blob directory (default <data>/blobs)
//	-s string   staging directory for provider exports (default <data>/staging)
//	-l string   listen address of the provider (host:port)
//	-t int      dial timeout for the getter (seconds)
//	-w int      scrypt work factor (log2) used to seal database snapshots
//	-v string   log level: debug, info, warn, error
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "data_dir": "/var/lib/keeperlink",
//	  "listen_addr": "0.0.0.0:0",
//	  "dial_timeout": "10s",
//	  "shutdown_grace": "2s",
//	  "event_buffer_size": 32,
//	  "scrypt_work_factor": 18,
//	  "housekeeping_interval": "1m",
//	  "log_level": "info",
//	  "log_format": "text"
//	}
package config
