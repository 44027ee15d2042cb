// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testsuite contains tests shared by every storage.KeyValueStore.
package testsuite

import (
	"bytes"
	"testing"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/storage"
)

// RunTests runs common storage.KeyValueStore tests
func RunTests(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	t.Run("CRUD", func(t *testing.T) { testCRUD(t, ctx, store) })
	t.Run("Constraints", func(t *testing.T) { testConstraints(t, ctx, store) })
	t.Run("List", func(t *testing.T) { testList(t, ctx, store) })
	t.Run("Parallel", func(t *testing.T) { testParallel(t, ctx, store) })
}

func testCRUD(t *testing.T, ctx *testcontext.Context, store storage.KeyValueStore) {
	items := []item{
		newItem("\x00", "\x00"),
		newItem("a/b", "\x01\x00"),
		newItem("a\\b", "\xFF"),
		newItem("full/path/1", "\x00\xFF\xFF\x00"),
		newItem("full/path/2", "\x00\xFF\xFF\x01"),
		newItem("full/path/3", "\x00\xFF\xFF\x02"),
		newItem("öö", "üü"),
	}
	defer cleanupItems(t, ctx, store, items)

	for _, it := range items {
		if err := store.Put(ctx, it.Key, it.Value); err != nil {
			t.Fatalf("failed to put %q = %v: %v", it.Key, it.Value, err)
		}
	}

	for _, it := range items {
		value, err := store.Get(ctx, it.Key)
		if err != nil {
			t.Fatalf("failed to get %q = %v: %v", it.Key, it.Value, err)
		}
		if !bytes.Equal(value, it.Value) {
			t.Fatalf("invalid value for %q = %v: got %v", it.Key, it.Value, value)
		}
	}

	// update values
	for _, it := range items {
		next := storage.Value(string(it.Value) + "X")
		if err := store.Put(ctx, it.Key, next); err != nil {
			t.Fatalf("failed to update %q = %v: %v", it.Key, next, err)
		}
		value, err := store.Get(ctx, it.Key)
		if err != nil {
			t.Fatalf("failed to get updated %q: %v", it.Key, err)
		}
		if !bytes.Equal(value, next) {
			t.Fatalf("invalid updated value for %q = %v: got %v", it.Key, next, value)
		}
	}

	for _, it := range items {
		if err := store.Delete(ctx, it.Key); err != nil {
			t.Fatalf("failed to delete %q: %v", it.Key, err)
		}
		if _, err := store.Get(ctx, it.Key); !storage.ErrKeyNotFound.Has(err) {
			t.Fatalf("expected key not found for deleted %q: %v", it.Key, err)
		}
	}
}

func testConstraints(t *testing.T, ctx *testcontext.Context, store storage.KeyValueStore) {
	if err := store.Put(ctx, nil, storage.Value("xyz")); !storage.ErrEmptyKey.Has(err) {
		t.Fatalf("putting empty key should fail with empty key: %v", err)
	}
	if _, err := store.Get(ctx, storage.Key("missing")); !storage.ErrKeyNotFound.Has(err) {
		t.Fatalf("getting missing key should fail with key not found: %v", err)
	}
	if err := store.Delete(ctx, storage.Key("missing")); !storage.ErrKeyNotFound.Has(err) {
		t.Fatalf("deleting missing key should fail with key not found: %v", err)
	}
}

func testParallel(t *testing.T, ctx *testcontext.Context, store storage.KeyValueStore) {
	items := []item{
		newItem("parallel/a", "1"),
		newItem("parallel/b", "2"),
		newItem("parallel/c", "3"),
	}

	for i := range items {
		it := items[i]
		t.Run(string(it.Key), func(t *testing.T) {
			t.Parallel()

			if err := store.Put(ctx, it.Key, it.Value); err != nil {
				t.Fatalf("failed to put %q: %v", it.Key, err)
			}
			value, err := store.Get(ctx, it.Key)
			if err != nil {
				t.Fatalf("failed to get %q: %v", it.Key, err)
			}
			if !bytes.Equal(value, it.Value) {
				t.Fatalf("invalid value for %q = %v: got %v", it.Key, it.Value, value)
			}
			if err := store.Delete(ctx, it.Key); err != nil {
				t.Fatalf("failed to delete %q: %v", it.Key, err)
			}
		})
	}
}
