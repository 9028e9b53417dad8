package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/flagx"
)

// ValueFlags lists the flags parseFlags understands that take a value. The
// CLI uses it to tell operands apart from flag values.
var ValueFlags = []string{"-c", "-config", "-d", "-b", "-s", "-l", "-t", "-w", "-v"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   data directory
//	-b string   blob directory
//	-s string   staging directory
//	-l string   provider listen address
//	-t int      dial timeout (seconds)
//	-w int      scrypt work factor (log2)
//	-v string   log level
//
// os.Args is filtered through flagx.FilterArgs first so subcommands and
// other components' flags do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-b", "-s", "-l", "-t", "-w", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.BlobDir, "b", cfg.BlobDir, "blob directory")
	fs.StringVar(&cfg.StagingDir, "s", cfg.StagingDir, "staging directory for exports")
	fs.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "provider listen address")
	dialTimeout := fs.Int("t", int(cfg.DialTimeout.Seconds()), "dial timeout (in seconds)")
	fs.IntVar(&cfg.ScryptWorkFactor, "w", cfg.ScryptWorkFactor, "scrypt work factor (log2)")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.DialTimeout = time.Duration(*dialTimeout) * time.Second
}
