// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cfgstruct_test

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/dht/pkg/cfgstruct"
	"storj.io/dht/pkg/kademlia"
)

func TestBind(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.PanicOnError)
	var c struct {
		String   string        `default:""`
		Bool     bool          `releaseDefault:"false" devDefault:"true"`
		Int64    int64         `releaseDefault:"0" devDefault:"1"`
		Int      int           `default:"0"`
		Uint64   uint64        `default:"0"`
		Float64  float64       `default:"0"`
		Duration time.Duration `default:"0"`
		Slice    []string      `default:"a,b"`
		Struct   struct {
			AddrTTL time.Duration `default:"1h"`
		}
		Fields [1]struct {
			Ignored int
		} `internal:"true"`
		hidden int
	}
	cfgstruct.Bind(f, &c, cfgstruct.UseReleaseDefaults())

	assert.Equal(t, "", c.String)
	assert.Equal(t, false, c.Bool)
	assert.Equal(t, int64(0), c.Int64)
	assert.Equal(t, []string{"a", "b"}, c.Slice)
	assert.Equal(t, time.Hour, c.Struct.AddrTTL)

	require.NoError(t, f.Parse([]string{
		"--string=1",
		"--bool=true",
		"--int64=2",
		"--int=3",
		"--uint64=4",
		"--float64=5.5",
		"--duration=6s",
		"--slice=x,y,z",
		"--struct.addr-ttl=7m",
	}))

	assert.Equal(t, "1", c.String)
	assert.Equal(t, true, c.Bool)
	assert.Equal(t, int64(2), c.Int64)
	assert.Equal(t, 3, c.Int)
	assert.Equal(t, uint64(4), c.Uint64)
	assert.Equal(t, 5.5, c.Float64)
	assert.Equal(t, 6*time.Second, c.Duration)
	assert.Equal(t, []string{"x", "y", "z"}, c.Slice)
	assert.Equal(t, 7*time.Minute, c.Struct.AddrTTL)

	assert.Nil(t, f.Lookup("fields"))
	assert.Nil(t, f.Lookup("hidden"))
}

func TestDefaultsByType(t *testing.T) {
	type config struct {
		Value int `releaseDefault:"1" devDefault:"2" testDefault:"3"`
		Other int `devDefault:"4"`
	}

	for _, tt := range []struct {
		opt   cfgstruct.BindOpt
		value int
		other int
	}{
		{cfgstruct.UseReleaseDefaults(), 1, 4},
		{cfgstruct.UseDevDefaults(), 2, 4},
		{cfgstruct.UseTestDefaults(), 3, 4},
	} {
		var c config
		cfgstruct.Bind(pflag.NewFlagSet("", pflag.PanicOnError), &c, tt.opt)
		assert.Equal(t, tt.value, c.Value)
		assert.Equal(t, tt.other, c.Other)
	}
}

func TestConfDir(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.PanicOnError)
	var c struct {
		Path string `default:"$CONFDIR/records.db"`
		Name string `default:"$CONFNAME"`
	}
	cfgstruct.Bind(f, &c, cfgstruct.ConfDir("/tmp/kadnode/"))
	assert.Equal(t, "/tmp/kadnode/records.db", c.Path)
	assert.Equal(t, "kadnode", c.Name)
}

func TestAnnotations(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.PanicOnError)
	var c struct {
		Visible int `default:"1" user:"true"`
		Secret  int `default:"2" hidden:"true"`
	}
	cfgstruct.Bind(f, &c)

	assert.Equal(t, []string{"true"}, f.Lookup("visible").Annotations["user"])
	assert.True(t, f.Lookup("secret").Hidden)
}

func TestBindKademliaConfig(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.PanicOnError)
	var c struct {
		Kademlia kademlia.Config
	}
	cfgstruct.Bind(f, &c)

	assert.Equal(t, kademlia.DefaultConfig(), c.Kademlia)
	for _, name := range []string{
		"kademlia.bootstrap-peers",
		"kademlia.bucket-size",
		"kademlia.replacement-cache-size",
		"kademlia.request-timeout",
		"kademlia.addr-ttl",
	} {
		assert.NotNil(t, f.Lookup(name), name)
	}

	require.NoError(t, f.Parse([]string{"--kademlia.alpha=5", "--kademlia.addr-ttl=2h"}))
	assert.Equal(t, 5, c.Kademlia.Alpha)
	assert.Equal(t, 2*time.Hour, c.Kademlia.AddrTTL)
	require.NoError(t, c.Kademlia.Verify())
}

func TestInvalidConfig(t *testing.T) {
	var c struct {
		Channel chan int
	}
	assert.Panics(t, func() {
		cfgstruct.Bind(pflag.NewFlagSet("", pflag.PanicOnError), &c)
	})
	assert.Panics(t, func() {
		cfgstruct.Bind(pflag.NewFlagSet("", pflag.PanicOnError), c)
	})
}
