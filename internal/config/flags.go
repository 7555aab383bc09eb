package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophsafe/internal/flagx"
)

var knownFlags = []string{
	"-f", "--f", "-format", "--format",
	"-r", "--r", "-registry", "--registry",
	"-d", "--d", "-deref-depth", "--deref-depth",
	"-l", "--l", "-log-level", "--log-level",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short and long forms):
//
//	-f, -format string       format for new databases
//	-r, -registry string     registry DSN
//	-d, -deref-depth int     dereference pass cap
//	-l, -log-level string    log level
//
// Note: The function filters args to only include the flags it knows about,
// using flagx.FilterArgs, so that subcommand flags and positional arguments
// do not interfere. Invalid values panic.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DefaultFormat, "f", cfg.DefaultFormat, "format for new databases")
	fs.StringVar(&cfg.DefaultFormat, "format", cfg.DefaultFormat, "format for new databases")
	fs.StringVar(&cfg.RegistryDSN, "r", cfg.RegistryDSN, "registry DSN")
	fs.StringVar(&cfg.RegistryDSN, "registry", cfg.RegistryDSN, "registry DSN")
	fs.IntVar(&cfg.DereferenceMaxDepth, "d", cfg.DereferenceMaxDepth, "dereference pass cap")
	fs.IntVar(&cfg.DereferenceMaxDepth, "deref-depth", cfg.DereferenceMaxDepth, "dereference pass cap")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
