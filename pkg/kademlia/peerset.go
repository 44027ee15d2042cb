// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"sync"

	"storj.io/dht/pkg/peer"
)

// peerSet remembers which peers were already reported to a caller.
type peerSet struct {
	mu    sync.Mutex
	limit int
	ids   map[peer.ID]struct{}
}

// newPeerSet creates a set that accepts at most limit peers, any number
// when limit <= 0.
func newPeerSet(limit int) *peerSet {
	return &peerSet{limit: limit, ids: map[peer.ID]struct{}{}}
}

// TryAdd adds p and returns whether it was not yet present.
func (set *peerSet) TryAdd(p peer.ID) bool {
	set.mu.Lock()
	defer set.mu.Unlock()

	if _, ok := set.ids[p]; ok {
		return false
	}
	if set.limit > 0 && len(set.ids) >= set.limit {
		return false
	}
	set.ids[p] = struct{}{}
	return true
}

// Contains returns whether p was added.
func (set *peerSet) Contains(p peer.ID) bool {
	set.mu.Lock()
	defer set.mu.Unlock()
	_, ok := set.ids[p]
	return ok
}

// Size returns the number of peers in the set.
func (set *peerSet) Size() int {
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.ids)
}

// Full returns whether the limit was reached.
func (set *peerSet) Full() bool {
	set.mu.Lock()
	defer set.mu.Unlock()
	return set.limit > 0 && len(set.ids) >= set.limit
}
