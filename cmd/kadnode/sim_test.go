// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/internal/testplanet"
	"storj.io/dht/pkg/kademlia"
	"storj.io/dht/storage"
	"storj.io/dht/storage/redis/redisserver"
)

func TestOpenStore(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	defer cleanup()

	for _, backend := range []string{
		"memory",
		"bolt://" + ctx.Dir("bolt"),
		"sqlite://" + ctx.Dir("sqlite"),
		"redis://" + addr + "?db=0",
	} {
		a, err := openStore(backend, 0)
		require.NoError(t, err, backend)
		b, err := openStore(backend, 1)
		require.NoError(t, err, backend)

		require.NoError(t, a.Put(ctx, storage.Key("key"), storage.Value("a")), backend)
		_, err = b.Get(ctx, storage.Key("key"))
		assert.True(t, storage.ErrKeyNotFound.Has(err), backend)

		require.NoError(t, a.Close())
		require.NoError(t, b.Close())
	}

	_, err = openStore("cassandra://localhost", 0)
	require.Error(t, err)
}

func TestSimulation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	planet, err := testplanet.NewCustom(log, testplanet.Config{
		NodeCount:      8,
		DisableRefresh: true,
	})
	require.NoError(t, err)
	defer ctx.Check(planet.Shutdown)
	require.NoError(t, planet.Start(ctx))

	config := SimConfig{
		Content:  "simulated content",
		Key:      "/kadnode/test",
		Value:    "value",
		Kademlia: kademlia.DefaultConfig(),
	}
	sim := &simulation{log: log, planet: planet, config: config}

	require.NoError(t, sim.providers(ctx))
	require.NoError(t, sim.values(ctx))
	require.NoError(t, sim.peers(ctx))
	sim.dumpTables()
}
