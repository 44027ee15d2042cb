// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/dht/pkg/cfgstruct"
)

// DefaultCfgFilename is the default filename used for storing a configuration.
const DefaultCfgFilename = "config.yaml"

var (
	mon = monkit.Package()

	contextMtx sync.Mutex
	contexts   = map[*cobra.Command]context.Context{}
)

// Bind sets flags on a command that match the configuration struct
// 'config'. It ensures that the config has all of the values loaded into it
// when the command runs.
func Bind(cmd *cobra.Command, config interface{}, opts ...cfgstruct.BindOpt) {
	cfgstruct.Bind(cmd.Flags(), config, opts...)
}

// Exec runs a Cobra command. If a "config-dir" flag is defined, it will be
// loaded as a yaml config file in that directory.
func Exec(cmd *cobra.Command) {
	cmd.SilenceUsage = true
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	cleanup(cmd)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Ctx returns the appropriate context.Context for ExecuteWithConfig commands.
func Ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	contextMtx.Lock()
	ctx := contexts[cmd]
	contextMtx.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			zap.L().Info("Got a signal from the OS", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()
	return ctx, cancel
}

// Viper returns a viper instance for the command with the config file, the
// environment (DHT_ prefix) and the command flags bound to it.
func Viper(cmd *cobra.Command) (*viper.Viper, error) {
	vip := viper.New()
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return nil, Error.Wrap(err)
	}

	prefix := os.Getenv("DHT_ENV_PREFIX")
	if prefix == "" {
		prefix = "dht"
	}
	vip.SetEnvPrefix(prefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	cfgFlag := cmd.Flags().Lookup("config-dir")
	if cfgFlag != nil && cfgFlag.Value.String() != "" {
		path := filepath.Join(os.ExpandEnv(cfgFlag.Value.String()), DefaultCfgFilename)
		if fileExists(path) {
			setupCommand := cmd.Annotations["type"] == "setup"
			vip.SetConfigFile(path)
			if err := vip.ReadInConfig(); err != nil && !setupCommand {
				return nil, Error.Wrap(err)
			}
		}
	}

	return vip, nil
}

func cleanup(cmd *cobra.Command) {
	for _, ccmd := range cmd.Commands() {
		cleanup(ccmd)
	}
	if cmd.Run != nil {
		panic("Please use cobra's RunE instead of Run")
	}
	internalRun := cmd.RunE
	if internalRun == nil {
		return
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		ctx := context.Background()
		defer mon.TaskNamed("root")(&ctx)(&err)

		vip, err := Viper(cmd)
		if err != nil {
			return err
		}

		// propagate config file and environment values to flags that were
		// not set on the command line.
		var brokenKeys, brokenVals []string
		for _, key := range vip.AllKeys() {
			f := cmd.Flags().Lookup(key)
			if f == nil {
				brokenKeys = append(brokenKeys, key)
				continue
			}
			if f.Changed {
				continue
			}
			if err := cmd.Flags().Set(key, vip.GetString(key)); err != nil {
				brokenVals = append(brokenVals, key)
			}
			f.Changed = false
		}

		logger, err := NewLogger(cmd.Name())
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		defer zap.ReplaceGlobals(logger)()
		defer zap.RedirectStdLog(logger)()

		for _, key := range brokenKeys {
			logger.Info("Invalid configuration file key", zap.String("Key", key))
		}
		for _, key := range brokenVals {
			logger.Info("Invalid configuration file value for key", zap.String("Key", key))
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		contextMtx.Lock()
		contexts[cmd] = ctx
		contextMtx.Unlock()
		defer func() {
			contextMtx.Lock()
			delete(contexts, cmd)
			contextMtx.Unlock()
		}()

		err = internalRun(cmd, args)
		if err != nil {
			logger.Error("Command failed", zap.Error(err))
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
		}
		return err
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
