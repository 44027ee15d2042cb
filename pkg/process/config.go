// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
	yaml "gopkg.in/yaml.v2"
)

// SaveConfig writes the settings of cmd to outfile as yaml. Only flags that
// were changed, are marked with `user:"true"` or appear in overrides are
// written; hidden and setup-only flags never are.
func SaveConfig(cmd *cobra.Command, outfile string, overrides map[string]interface{}) error {
	vip, err := Viper(cmd)
	if err != nil {
		return err
	}
	if err := vip.MergeConfigMap(overrides); err != nil {
		return Error.Wrap(err)
	}

	settings := vip.AllSettings()
	pruneSettings(cmd.Flags(), "", settings, overrides)

	var data []byte
	if len(settings) > 0 {
		data, err = yaml.Marshal(settings)
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return Error.Wrap(atomicWrite(outfile, 0600, data))
}

// pruneSettings removes every entry of settings that should not be saved.
// Nested sections are pruned recursively and dropped when they end up empty.
func pruneSettings(flags *pflag.FlagSet, prefix string, settings, overrides map[string]interface{}) {
	for key, value := range settings {
		if section, ok := value.(map[string]interface{}); ok {
			pruneSettings(flags, prefix+key+".", section, overrides)
			if len(section) == 0 {
				delete(settings, key)
			}
			continue
		}
		if !shouldSave(flags, prefix+key, overrides) {
			delete(settings, key)
		}
	}
}

func shouldSave(flags *pflag.FlagSet, name string, overrides map[string]interface{}) bool {
	_, overridden := overrides[name]

	if f := flags.Lookup(name); f != nil {
		if readBoolAnnotation(f, "setup") || readBoolAnnotation(f, "hidden") {
			return false
		}
		return overridden || f.Changed || readBoolAnnotation(f, "user")
	}
	if f := flag.Lookup(name); f != nil {
		return overridden || f.Value.String() != f.DefValue
	}
	return false
}

// readBoolAnnotation is a helper to see if a boolean annotation is set to true on the flag.
func readBoolAnnotation(flag *pflag.Flag, key string) bool {
	annotation := flag.Annotations[key]
	return len(annotation) > 0 && annotation[0] == "true"
}

// atomicWrite writes data to a temporary file next to outfile and renames
// it into place.
func atomicWrite(outfile string, mode os.FileMode, data []byte) (err error) {
	fh, err := os.CreateTemp(filepath.Dir(outfile), filepath.Base(outfile))
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = fh.Close()
			err = errs.Combine(err, os.Remove(fh.Name()))
		}
	}()

	if err := fh.Chmod(mode); err != nil {
		return err
	}
	if _, err := fh.Write(data); err != nil {
		return err
	}
	if err := fh.Sync(); err != nil {
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}
	return os.Rename(fh.Name(), outfile)
}
