// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cfgstruct

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// DefaultsType returns the type of defaults (release/dev) this binary should
// use. It reads the --defaults argument directly from os.Args because flags
// are bound before they are parsed.
func DefaultsType() string {
	if defaults := findArg("defaults"); defaults != "" {
		return defaults
	}
	return "release"
}

// DefaultsFlag sets up the --defaults flag and returns the matching BindOpt.
func DefaultsFlag(cmd *cobra.Command) BindOpt {
	defaults := DefaultsType()
	cmd.PersistentFlags().String("defaults", defaults,
		"determines which set of configuration defaults to use. can either be 'dev' or 'release'")
	return useDefaults(defaults)
}

// FindConfigDirParam returns the value of --config-dir if it was passed on
// the command line.
func FindConfigDirParam() string {
	return findArg("config-dir")
}

func findArg(name string) string {
	args := os.Args[1:]
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		arg = strings.TrimLeft(arg, "-")
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
	}
	return ""
}
