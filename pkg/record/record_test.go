// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package record_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/ed25519"
	"golang.org/x/sync/errgroup"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/record"
	"storj.io/dht/storage"
	"storj.io/dht/storage/teststore"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv
}

func TestSignValidate(t *testing.T) {
	priv := newKey(t)

	rec, err := record.Sign(priv, []byte("/v/name"), []byte("hello"), 1)
	require.NoError(t, err)
	require.NoError(t, record.Validate(rec))
	require.NoError(t, record.ValidateFor([]byte("/v/name"), rec))

	assert.True(t, record.ErrInvalidRecord.Has(record.ValidateFor([]byte("/v/other"), rec)))

	tampered := *rec
	tampered.Value = []byte("bye")
	assert.True(t, record.ErrInvalidRecord.Has(record.Validate(&tampered)))

	tampered = *rec
	tampered.Sequence++
	assert.True(t, record.ErrInvalidRecord.Has(record.Validate(&tampered)))

	tampered = *rec
	tampered.PublicKey = tampered.PublicKey[:5]
	assert.True(t, record.ErrInvalidRecord.Has(record.Validate(&tampered)))

	assert.True(t, record.ErrInvalidRecord.Has(record.Validate(nil)))

	_, err = record.Sign(priv, nil, []byte("x"), 1)
	assert.True(t, record.ErrInvalidRecord.Has(err))
}

func TestSelect(t *testing.T) {
	priv := newKey(t)
	key := []byte("/v/name")

	old, err := record.Sign(priv, key, []byte("old"), 1)
	require.NoError(t, err)
	newer, err := record.Sign(priv, key, []byte("new"), 2)
	require.NoError(t, err)
	forged := *newer
	forged.Sequence = 10

	best, err := record.Select(key, []*pb.Record{old, &forged, newer, nil})
	require.NoError(t, err)
	assert.Equal(t, 2, best)

	_, err = record.Select(key, []*pb.Record{&forged})
	assert.True(t, record.ErrInvalidRecord.Has(err))

	_, err = record.Select(key, nil)
	assert.Error(t, err)

	assert.True(t, record.Better(newer, old))
	assert.False(t, record.Better(old, newer))
	assert.True(t, record.Better(old, nil))
	assert.False(t, record.Better(nil, old))

	tieA, err := record.Sign(priv, key, []byte("a"), 3)
	require.NoError(t, err)
	tieB, err := record.Sign(priv, key, []byte("b"), 3)
	require.NoError(t, err)
	assert.True(t, record.Better(tieB, tieA))
	assert.False(t, record.Better(tieA, tieB))
}

func TestStore(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := teststore.New()
	store := record.NewStore(zaptest.NewLogger(t), db)
	defer ctx.Check(store.Close)

	priv := newKey(t)
	key := []byte("/v/name")

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, rec)

	v2, err := record.Sign(priv, key, []byte("v2"), 2)
	require.NoError(t, err)
	v1, err := record.Sign(priv, key, []byte("v1"), 1)
	require.NoError(t, err)

	stored, err := store.Put(ctx, v2)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = store.Put(ctx, v1)
	require.NoError(t, err)
	assert.False(t, stored, "older record must not replace newer")

	rec, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, record.Equal(v2, rec))

	invalid := *v2
	invalid.Signature = make([]byte, ed25519.SignatureSize)
	_, err = store.Put(ctx, &invalid)
	assert.True(t, record.ErrInvalidRecord.Has(err))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{key}, keys)

	// corrupted data is dropped
	require.NoError(t, db.Put(ctx, storage.Key("/v/broken"), storage.Value("\xff\xff")))
	rec, err = store.Get(ctx, []byte("/v/broken"))
	require.NoError(t, err)
	assert.Nil(t, rec)
	_, err = db.Get(ctx, storage.Key("/v/broken"))
	assert.True(t, storage.ErrKeyNotFound.Has(err))
}

func TestStore_ConcurrentPut(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	priv := newKey(t)
	key := []byte("/v/race")

	var recs []*pb.Record
	for seq := uint64(1); seq <= 10; seq++ {
		rec, err := record.Sign(priv, key, []byte(fmt.Sprintf("v%d", seq)), seq)
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	for i := 0; i < 50; i++ {
		store := record.NewStore(zaptest.NewLogger(t), teststore.New())

		var group errgroup.Group
		for _, rec := range recs {
			rec := rec
			group.Go(func() error {
				_, err := store.Put(ctx, rec)
				return err
			})
		}
		require.NoError(t, group.Wait())

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, uint64(10), got.Sequence, "round %d", i)
		require.NoError(t, store.Close())
	}
}
