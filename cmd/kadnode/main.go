// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/dht/pkg/cfgstruct"
	"storj.io/dht/pkg/process"
)

var (
	mon = monkit.Package()

	rootCmd = &cobra.Command{
		Use:   "kadnode",
		Short: "Kademlia DHT node tooling",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create a config file",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	simCmd = &cobra.Command{
		Use:   "sim",
		Short: "Run a simulated network and exercise every routing operation",
		RunE:  cmdSim,
	}

	setupCfg struct {
		Overwrite bool `help:"whether to overwrite an existing config file" default:"false" setup:"true"`
		SimConfig
	}
	simCfg SimConfig

	confDir string
)

func defaultConfDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".kadnode"
	}
	return filepath.Join(home, ".dht", "kadnode")
}

func init() {
	defaultDir := defaultConfDir()
	if dirParam := cfgstruct.FindConfigDirParam(); dirParam != "" {
		defaultDir = dirParam
	}

	rootCmd.PersistentFlags().StringVar(&confDir, "config-dir", defaultDir, "main directory for kadnode configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(simCmd)
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(defaultDir))
	process.Bind(simCmd, &simCfg, defaults, cfgstruct.ConfDir(defaultDir))
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(setupDir, 0700); err != nil {
		return err
	}

	path := filepath.Join(setupDir, process.DefaultCfgFilename)
	if _, err := os.Stat(path); err == nil && !setupCfg.Overwrite {
		return errs.New("kadnode configuration already exists (%v)", path)
	}

	return process.SaveConfig(cmd, path, nil)
}

func main() {
	process.Exec(rootCmd)
}
