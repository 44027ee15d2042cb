// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package redis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/storage"
	"storj.io/dht/storage/redis"
	"storj.io/dht/storage/redis/redisserver"
	"storj.io/dht/storage/testsuite"
)

func TestSuite(t *testing.T) {
	addr, cleanup, err := redisserver.Start()
	require.NoError(t, err)
	defer cleanup()

	client, err := redis.NewClient(addr, "", 1, "")
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	testsuite.RunTests(t, client)
}

func TestNamespaces(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	defer cleanup()

	a, err := redis.NewClientFrom("redis://" + addr + "?db=0&namespace=a/")
	require.NoError(t, err)
	defer ctx.Check(a.Close)

	b, err := redis.NewClientFrom("redis://" + addr + "?db=0&namespace=b/")
	require.NoError(t, err)
	defer ctx.Check(b.Close)

	require.NoError(t, a.Put(ctx, storage.Key("key"), storage.Value("a")))
	require.NoError(t, b.Put(ctx, storage.Key("key"), storage.Value("b")))
	require.NoError(t, b.Put(ctx, storage.Key("other"), storage.Value("b")))

	value, err := a.Get(ctx, storage.Key("key"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(value))

	keys, err := a.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"key"}, keys.Strings())

	keys, err = b.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "other"}, keys.Strings())
}

func TestInvalidConnection(t *testing.T) {
	_, err := redis.NewClient("127.0.0.1:1", "", 1, "")
	assert.Error(t, err)

	_, err = redis.NewClientFrom("http://127.0.0.1:1")
	assert.True(t, redis.Error.Has(err))
}
