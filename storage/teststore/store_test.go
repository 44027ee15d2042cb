// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package teststore

import (
	"testing"

	"storj.io/dht/storage/testsuite"
)

func TestSuite(t *testing.T) {
	store := New()
	testsuite.RunTests(t, store)

	if store.CallCount.Put == 0 || store.CallCount.List == 0 {
		t.Fatal("expected store to be exercised")
	}
}
