package config

import (
	"os"

	flags "github.com/jessevdk/go-flags"
)

// CLIOptions are the flags shared by every agent binary. Nothing but
// config location, log verbosity, and a single-network restriction is
// configurable on the command line; everything else comes from the config
// document and its environment overlay.
type CLIOptions struct {
	ConfigPath string `short:"c" long:"config" description:"path to the NomadConfig JSON document (overrides CONFIG_PATH)"`
	DebugLevel string `long:"debuglevel" description:"logging level: trace, debug, info, warn, error, critical" default:"info"`
	Network    string `long:"network" description:"restrict this binary to a single network"`
}

// ParseCLIOptions parses os.Args and, if ConfigPath was given on the
// command line, exports it as CONFIG_PATH so Load can pick it up uniformly.
func ParseCLIOptions() (*CLIOptions, error) {
	var opts CLIOptions
	if _, err := flags.Parse(&opts); err != nil {
		return nil, err
	}

	if opts.ConfigPath != "" {
		if err := os.Setenv("CONFIG_PATH", opts.ConfigPath); err != nil {
			return nil, err
		}
	}

	return &opts, nil
}
