// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/storage"
)

// testList stores records under keys that share the "/rec/" namespace and
// checks that List walks them in key order starting at first.
func testList(t *testing.T, ctx *testcontext.Context, store storage.KeyValueStore) {
	var items []item
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		items = append(items, newItem("/rec/"+name, "record "+name))
	}
	rand.Shuffle(len(items), func(i, k int) { items[i], items[k] = items[k], items[i] })
	defer cleanupItems(t, ctx, store, items)

	if err := putAll(ctx, store, items); err != nil {
		t.Fatalf("failed to setup: %v", err)
	}

	keys := func(names ...string) storage.Keys {
		var keys storage.Keys
		for _, name := range names {
			keys = append(keys, storage.Key("/rec/"+name))
		}
		return keys
	}

	for _, test := range []struct {
		name  string
		first string
		limit int
		want  storage.Keys
	}{
		{name: "from start", limit: 2, want: keys("a", "b")},
		{name: "unlimited", limit: 0, want: keys("a", "b", "c", "d", "e", "f")},
		{name: "limit above count", limit: 50, want: keys("a", "b", "c", "d", "e", "f")},
		{name: "existing first", first: "/rec/c", limit: 3, want: keys("c", "d", "e")},
		{name: "between keys", first: "/rec/bb", limit: 2, want: keys("c", "d")},
		{name: "past the end", first: "/rec/g", limit: 3},
	} {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var first storage.Key
			if test.first != "" {
				first = storage.Key(test.first)
			}
			got, err := store.List(ctx, first, test.limit)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("(-want +got)\n%s", diff)
			}
		})
	}
}
