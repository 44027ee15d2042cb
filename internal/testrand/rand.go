// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testrand implements generating random base types for testing.
package testrand

import (
	"math/rand"

	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
)

// Intn returns, as an int, a non-negative pseudo-random number in [0,n)
// from the default Source.
// It panics if n <= 0.
func Intn(n int) int {
	return rand.Intn(n)
}

// Read reads pseudo-random data into data.
func Read(data []byte) {
	const newSourceThreshold = 64
	if len(data) < newSourceThreshold {
		_, _ = rand.Read(data)
		return
	}

	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// BytesInt generates size amount of random data.
func BytesInt(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// Key creates a random keyspace id.
func Key() keyspace.ID {
	var id keyspace.ID
	Read(id[:])
	return id
}

// PeerID creates a random peer id.
func PeerID() peer.ID {
	return peer.ID(BytesInt(32))
}

// PeerIDs creates n distinct random peer ids.
func PeerIDs(n int) []peer.ID {
	seen := make(map[peer.ID]struct{}, n)
	ids := make([]peer.ID, 0, n)
	for len(ids) < n {
		id := PeerID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// PeerIDWithCPL creates a random peer id whose key shares exactly cpl
// leading bits with local.
//
// The search is random, keep cpl small.
func PeerIDWithCPL(local keyspace.ID, cpl int) peer.ID {
	for {
		id := PeerID()
		if keyspace.CommonPrefixLen(id.Key(), local) == cpl {
			return id
		}
	}
}
