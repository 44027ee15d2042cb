// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package qpeerset tracks the peers seen during a single lookup.
package qpeerset

import (
	"fmt"
	"sort"

	"github.com/zeebo/errs"

	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
)

// ErrInvalidTransition is returned for a state change that is not allowed.
var ErrInvalidTransition = errs.Class("invalid peer state transition")

// PeerState is the state of a peer within one lookup.
type PeerState int

const (
	// PeerHeard means we know about the peer but have not contacted it.
	PeerHeard PeerState = iota
	// PeerWaiting means a request to the peer is outstanding.
	PeerWaiting
	// PeerQueried means the peer responded.
	PeerQueried
	// PeerUnreachable means the request to the peer failed.
	PeerUnreachable
)

// String implements fmt.Stringer.
func (state PeerState) String() string {
	switch state {
	case PeerHeard:
		return "heard"
	case PeerWaiting:
		return "waiting"
	case PeerQueried:
		return "queried"
	case PeerUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("PeerState(%d)", int(state))
	}
}

// CanTransition returns whether a peer may move from state from to state to.
// Transitions only go forward: heard peers become waiting, and waiting peers
// end up queried or unreachable.
func CanTransition(from, to PeerState) bool {
	switch from {
	case PeerHeard:
		return to == PeerWaiting
	case PeerWaiting:
		return to == PeerQueried || to == PeerUnreachable
	default:
		return false
	}
}

type queryPeerState struct {
	id         peer.ID
	distance   keyspace.ID
	state      PeerState
	referredBy peer.ID
}

// QueryPeerSet maps every peer seen by a lookup to its state and its
// distance to the lookup target.
//
// QueryPeerSet is not safe for concurrent use. A lookup has exactly one
// goroutine applying updates to it.
type QueryPeerSet struct {
	target keyspace.ID
	peers  map[peer.ID]*queryPeerState
	order  []*queryPeerState
}

// New returns an empty set for a lookup of target.
func New(target keyspace.ID) *QueryPeerSet {
	return &QueryPeerSet{
		target: target,
		peers:  make(map[peer.ID]*queryPeerState),
	}
}

// Target returns the lookup target.
func (set *QueryPeerSet) Target() keyspace.ID { return set.target }

// TryAdd adds p in the heard state. It returns false if p was already known.
func (set *QueryPeerSet) TryAdd(p, referredBy peer.ID) bool {
	if _, ok := set.peers[p]; ok {
		return false
	}
	state := &queryPeerState{
		id:         p,
		distance:   keyspace.Xor(p.Key(), set.target),
		state:      PeerHeard,
		referredBy: referredBy,
	}
	set.peers[p] = state
	set.order = append(set.order, state)
	return true
}

// Contains returns whether p is in the set.
func (set *QueryPeerSet) Contains(p peer.ID) bool {
	_, ok := set.peers[p]
	return ok
}

// SetState moves p to state.
func (set *QueryPeerSet) SetState(p peer.ID, state PeerState) error {
	current := set.mustGet(p)
	if !CanTransition(current.state, state) {
		return ErrInvalidTransition.New("%s: %s -> %s", p.ShortString(), current.state, state)
	}
	current.state = state
	return nil
}

// GetState returns the state of p. Asking for a peer that was never added
// is a programming error and panics.
func (set *QueryPeerSet) GetState(p peer.ID) PeerState {
	return set.mustGet(p).state
}

// GetReferrer returns the peer that told us about p.
func (set *QueryPeerSet) GetReferrer(p peer.ID) peer.ID {
	return set.mustGet(p).referredBy
}

func (set *QueryPeerSet) mustGet(p peer.ID) *queryPeerState {
	state, ok := set.peers[p]
	if !ok {
		panic(fmt.Sprintf("qpeerset: unknown peer %s", p.ShortString()))
	}
	return state
}

// GetClosestNInStates returns up to n peers in any of states, closest to
// the target first.
func (set *QueryPeerSet) GetClosestNInStates(n int, states ...PeerState) []peer.ID {
	if n <= 0 {
		return nil
	}

	var filtered []*queryPeerState
	for _, p := range set.order {
		for _, state := range states {
			if p.state == state {
				filtered = append(filtered, p)
				break
			}
		}
	}

	sort.Slice(filtered, func(i, k int) bool {
		return filtered[i].distance.Less(filtered[k].distance)
	})
	if len(filtered) > n {
		filtered = filtered[:n]
	}

	ids := make([]peer.ID, 0, len(filtered))
	for _, p := range filtered {
		ids = append(ids, p.id)
	}
	return ids
}

// GetClosestInStates returns all peers in any of states, closest first.
func (set *QueryPeerSet) GetClosestInStates(states ...PeerState) []peer.ID {
	return set.GetClosestNInStates(len(set.order), states...)
}

// NumHeard returns the number of peers in the heard state.
func (set *QueryPeerSet) NumHeard() int { return set.count(PeerHeard) }

// NumWaiting returns the number of peers in the waiting state.
func (set *QueryPeerSet) NumWaiting() int { return set.count(PeerWaiting) }

// Len returns the number of peers in the set.
func (set *QueryPeerSet) Len() int { return len(set.order) }

func (set *QueryPeerSet) count(state PeerState) int {
	n := 0
	for _, p := range set.order {
		if p.state == state {
			n++
		}
	}
	return n
}

// Snapshot returns the state of every peer.
func (set *QueryPeerSet) Snapshot() map[peer.ID]PeerState {
	out := make(map[peer.ID]PeerState, len(set.order))
	for _, p := range set.order {
		out[p.id] = p.state
	}
	return out
}
