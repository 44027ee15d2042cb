// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package qpeerset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/dht/internal/testrand"
	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/qpeerset"
)

func TestQueryPeerSet(t *testing.T) {
	target := testrand.Key()
	set := qpeerset.New(target)
	ids := testrand.PeerIDs(5)
	referrer := testrand.PeerID()

	for _, id := range ids {
		assert.True(t, set.TryAdd(id, referrer))
	}
	assert.False(t, set.TryAdd(ids[0], ""))
	assert.Equal(t, 5, set.Len())
	assert.Equal(t, 5, set.NumHeard())
	assert.Equal(t, 0, set.NumWaiting())
	assert.Equal(t, referrer, set.GetReferrer(ids[0]))

	closest := set.GetClosestInStates(qpeerset.PeerHeard)
	require.Len(t, closest, 5)
	for i := 1; i < len(closest); i++ {
		assert.True(t, keyspace.Closer(closest[i-1].Key(), closest[i].Key(), target))
	}

	require.NoError(t, set.SetState(closest[0], qpeerset.PeerWaiting))
	require.NoError(t, set.SetState(closest[1], qpeerset.PeerWaiting))
	assert.Equal(t, 3, set.NumHeard())
	assert.Equal(t, 2, set.NumWaiting())

	require.NoError(t, set.SetState(closest[0], qpeerset.PeerQueried))
	require.NoError(t, set.SetState(closest[1], qpeerset.PeerUnreachable))

	assert.Equal(t, []peer.ID{closest[0]}, set.GetClosestNInStates(3, qpeerset.PeerQueried))
	assert.Equal(t, closest[2:4], set.GetClosestNInStates(2, qpeerset.PeerHeard))
	assert.Equal(t, []peer.ID{closest[0], closest[2]},
		set.GetClosestNInStates(2, qpeerset.PeerHeard, qpeerset.PeerWaiting, qpeerset.PeerQueried))
	assert.Empty(t, set.GetClosestNInStates(0, qpeerset.PeerHeard))

	snapshot := set.Snapshot()
	assert.Equal(t, qpeerset.PeerUnreachable, snapshot[closest[1]])
}

func TestQueryPeerSet_Monotonic(t *testing.T) {
	set := qpeerset.New(testrand.Key())
	id := testrand.PeerID()
	set.TryAdd(id, "")

	assert.True(t, qpeerset.ErrInvalidTransition.Has(set.SetState(id, qpeerset.PeerQueried)))
	require.NoError(t, set.SetState(id, qpeerset.PeerWaiting))
	require.NoError(t, set.SetState(id, qpeerset.PeerQueried))

	for _, to := range []qpeerset.PeerState{qpeerset.PeerHeard, qpeerset.PeerWaiting, qpeerset.PeerUnreachable} {
		err := set.SetState(id, to)
		assert.True(t, qpeerset.ErrInvalidTransition.Has(err), to.String())
	}
	assert.Equal(t, qpeerset.PeerQueried, set.GetState(id))

	other := testrand.PeerID()
	set.TryAdd(other, "")
	require.NoError(t, set.SetState(other, qpeerset.PeerWaiting))
	require.NoError(t, set.SetState(other, qpeerset.PeerUnreachable))
	assert.Error(t, set.SetState(other, qpeerset.PeerWaiting))
}

func TestQueryPeerSet_UnknownPeerPanics(t *testing.T) {
	set := qpeerset.New(testrand.Key())
	assert.Panics(t, func() { set.GetState(testrand.PeerID()) })
	assert.Panics(t, func() { _ = set.SetState(testrand.PeerID(), qpeerset.PeerWaiting) })
}

func TestCanTransition(t *testing.T) {
	states := []qpeerset.PeerState{qpeerset.PeerHeard, qpeerset.PeerWaiting, qpeerset.PeerQueried, qpeerset.PeerUnreachable}
	allowed := map[[2]qpeerset.PeerState]bool{
		{qpeerset.PeerHeard, qpeerset.PeerWaiting}:       true,
		{qpeerset.PeerWaiting, qpeerset.PeerQueried}:     true,
		{qpeerset.PeerWaiting, qpeerset.PeerUnreachable}: true,
	}
	for _, from := range states {
		for _, to := range states {
			assert.Equal(t, allowed[[2]qpeerset.PeerState{from, to}], qpeerset.CanTransition(from, to), "%v -> %v", from, to)
		}
	}
	assert.Equal(t, "PeerState(9)", qpeerset.PeerState(9).String())
}
