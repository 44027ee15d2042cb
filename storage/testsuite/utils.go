// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"context"
	"testing"

	"storj.io/dht/storage"
)

type item struct {
	Key   storage.Key
	Value storage.Value
}

func newItem(key, value string) item {
	return item{Key: storage.Key(key), Value: storage.Value(value)}
}

func putAll(ctx context.Context, store storage.KeyValueStore, items []item) error {
	for _, it := range items {
		if err := store.Put(ctx, it.Key, it.Value); err != nil {
			return err
		}
	}
	return nil
}

func cleanupItems(t testing.TB, ctx context.Context, store storage.KeyValueStore, items []item) {
	for _, it := range items {
		if err := store.Delete(ctx, it.Key); err != nil && !storage.ErrKeyNotFound.Has(err) {
			t.Logf("failed to delete %q: %v", it.Key, err)
		}
	}
}
