// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/storage"
	"storj.io/dht/storage/teststore"
	"storj.io/dht/storage/testsuite"
)

func TestSuite(t *testing.T) {
	store := teststore.New()
	logged := New(zaptest.NewLogger(t), store)
	testsuite.RunTests(t, logged)
}

func TestLogsCalls(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	core, logs := observer.New(zapcore.DebugLevel)
	store := New(zap.New(core), teststore.New())

	require.NoError(t, store.Put(ctx, storage.Key("key"), storage.Value("a long value that gets truncated")))
	_, err := store.Get(ctx, storage.Key("missing"))
	require.True(t, storage.ErrKeyNotFound.Has(err))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "put", entries[0].Message)
	assert.Equal(t, []byte("a long value tha"), entries[0].ContextMap()["preview"])
	assert.Equal(t, "get miss", entries[1].Message)
}
