// Package flagx picks the configuration flags out of a command line shared
// with subcommands.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs keeps only the flags named in allowedFlags, with their values,
// so a flag.FlagSet that knows a few flags can parse a command line meant
// for the whole command tree. Both "-c conf.json" and "--config=conf.json"
// are understood; a following argument counts as the value unless it starts
// with "-". The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]bool, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = true
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if allowed[name] {
				filtered = append(filtered, arg)
			}
			continue
		}
		if !allowed[arg] {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			filtered = append(filtered, args[i])
		}
	}
	return filtered
}

// JsonConfigFlagsFrom extracts the config file path provided via the -c or
// -config flags (one or two dashes) from args.
//
// Only these flags are parsed; other arguments are ignored. This allows the
// application to safely parse its own flags without interfering with flags
// defined by the command tree.
//
// If neither flag is present, an empty string is returned.
func JsonConfigFlagsFrom(args []string) string {
	var config string

	args = FilterArgs(args, []string{"-c", "--c", "-config", "--config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}
