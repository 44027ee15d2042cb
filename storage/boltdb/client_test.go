// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/storage/boltdb"
	"storj.io/dht/storage/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := boltdb.New(ctx.File("bolt", "records.db"), "records")
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	testsuite.RunTests(t, store)
}

func TestReopen(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("bolt", "records.db")

	store, err := boltdb.New(path, "records")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, []byte("key"), []byte("value")))
	require.NoError(t, store.Close())

	store, err = boltdb.New(path, "records")
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	value, err := store.Get(ctx, []byte("key"))
	require.NoError(t, err)
	require.Equal(t, "value", string(value))
}
