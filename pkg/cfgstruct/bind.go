// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cfgstruct

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
)

// BindOpt is an option for the Bind method.
type BindOpt func(opts *bindOptions)

type bindOptions struct {
	defaults string
	vars     map[string]string
}

// ConfDir sets variables for default options called $CONFDIR and $CONFNAME.
func ConfDir(path string) BindOpt {
	val := filepath.Clean(os.ExpandEnv(path))
	return func(opts *bindOptions) {
		opts.vars["CONFDIR"] = val
		opts.vars["CONFNAME"] = filepath.Base(val)
	}
}

// UseDevDefaults forces the bind call to use development defaults.
func UseDevDefaults() BindOpt { return useDefaults("dev") }

// UseReleaseDefaults forces the bind call to use release defaults.
func UseReleaseDefaults() BindOpt { return useDefaults("release") }

// UseTestDefaults forces the bind call to use test defaults.
func UseTestDefaults() BindOpt { return useDefaults("test") }

func useDefaults(kind string) BindOpt {
	return func(opts *bindOptions) { opts.defaults = kind }
}

// Bind sets flags on a FlagSet that match the configuration struct
// 'config'. This works by traversing the config struct using the 'reflect'
// package.
func Bind(flags *pflag.FlagSet, config interface{}, opts ...BindOpt) {
	options := bindOptions{
		defaults: DefaultsType(),
		vars:     map[string]string{},
	}
	for _, opt := range opts {
		opt(&options)
	}

	ptrtype := reflect.TypeOf(config)
	if ptrtype.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("invalid config type: %#v. Expecting pointer to struct.", config))
	}
	bindConfig(flags, "", reflect.ValueOf(config).Elem(), &options)
}

func bindConfig(flags *pflag.FlagSet, prefix string, val reflect.Value, options *bindOptions) {
	if val.Kind() != reflect.Struct {
		panic(fmt.Sprintf("invalid config type: %#v", val.Type()))
	}
	typ := val.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fieldval := val.Field(i)
		if field.PkgPath != "" || field.Tag.Get("internal") == "true" {
			continue
		}

		flagname := prefix + hyphenate(snakeCase(field.Name))
		fieldaddr := fieldval.Addr().Interface()

		if fieldvalue, ok := fieldaddr.(pflag.Value); ok {
			def := expand(options.vars, getDefault(field.Tag, options.defaults))
			if def != "" {
				check(fieldvalue.Set(def))
			}
			flags.Var(fieldvalue, flagname, field.Tag.Get("help"))
			annotate(flags, flagname, field.Tag)
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if field.Anonymous {
				bindConfig(flags, prefix, fieldval, options)
			} else {
				bindConfig(flags, flagname+".", fieldval, options)
			}
			continue
		}

		help := field.Tag.Get("help")
		def := expand(options.vars, getDefault(field.Tag, options.defaults))
		if def == "" {
			def = zeroDefault(field.Type)
		}

		switch field.Type {
		case reflect.TypeOf(int(0)):
			val, err := strconv.ParseInt(def, 0, strconv.IntSize)
			check(err)
			flags.IntVar(fieldaddr.(*int), flagname, int(val), help)
		case reflect.TypeOf(int64(0)):
			val, err := strconv.ParseInt(def, 0, 64)
			check(err)
			flags.Int64Var(fieldaddr.(*int64), flagname, val, help)
		case reflect.TypeOf(uint64(0)):
			val, err := strconv.ParseUint(def, 0, 64)
			check(err)
			flags.Uint64Var(fieldaddr.(*uint64), flagname, val, help)
		case reflect.TypeOf(time.Duration(0)):
			val, err := time.ParseDuration(def)
			check(err)
			flags.DurationVar(fieldaddr.(*time.Duration), flagname, val, help)
		case reflect.TypeOf(float64(0)):
			val, err := strconv.ParseFloat(def, 64)
			check(err)
			flags.Float64Var(fieldaddr.(*float64), flagname, val, help)
		case reflect.TypeOf(string("")):
			flags.StringVar(fieldaddr.(*string), flagname, def, help)
		case reflect.TypeOf(bool(false)):
			val, err := strconv.ParseBool(def)
			check(err)
			flags.BoolVar(fieldaddr.(*bool), flagname, val, help)
		case reflect.TypeOf([]string(nil)):
			var val []string
			if def != "" {
				val = strings.Split(def, ",")
			}
			flags.StringSliceVar(fieldaddr.(*[]string), flagname, val, help)
		default:
			panic(fmt.Sprintf("invalid field type: %s", field.Type.String()))
		}
		annotate(flags, flagname, field.Tag)
	}
}

// getDefault picks the default for the requested defaults type, falling back
// to the plain `default` tag.
func getDefault(tag reflect.StructTag, defaults string) string {
	var keys []string
	switch defaults {
	case "test":
		keys = []string{"testDefault", "devDefault", "default"}
	case "dev":
		keys = []string{"devDefault", "default"}
	default:
		keys = []string{"releaseDefault", "default"}
	}
	// fields that only carry a default for another mode still need a value.
	keys = append(keys, "releaseDefault", "devDefault", "testDefault")
	for _, key := range keys {
		if val, ok := tag.Lookup(key); ok {
			return val
		}
	}
	return ""
}

func zeroDefault(typ reflect.Type) string {
	switch typ.Kind() {
	case reflect.Bool:
		return "false"
	case reflect.Int, reflect.Int64, reflect.Uint64, reflect.Float64:
		return "0"
	}
	return ""
}

func annotate(flags *pflag.FlagSet, name string, tag reflect.StructTag) {
	if tag.Get("setup") == "true" {
		setBoolAnnotation(flags, name, "setup")
	}
	if tag.Get("user") == "true" {
		setBoolAnnotation(flags, name, "user")
	}
	if tag.Get("hidden") == "true" {
		setBoolAnnotation(flags, name, "hidden")
		check(flags.MarkHidden(name))
	}
}

func setBoolAnnotation(flags *pflag.FlagSet, name, key string) {
	check(flags.SetAnnotation(name, key, []string{"true"}))
}

func expand(vars map[string]string, val string) string {
	return os.Expand(val, func(key string) string { return vars[key] })
}

func hyphenate(val string) string {
	return strings.Replace(val, "_", "-", -1)
}

// snakeCase converts a Go identifier into snake case, keeping acronyms
// together: "RequestTimeout" is "request_timeout" and "AddrTTL" is
// "addr_ttl".
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}
