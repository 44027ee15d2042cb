// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kbucket_test

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/dht/internal/testrand"
	"storj.io/dht/pkg/kbucket"
	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
)

func newTable(t *testing.T, bucketSize, cacheSize int) *kbucket.RoutingTable {
	rt, err := kbucket.NewRoutingTable(zaptest.NewLogger(t), testrand.PeerID(), bucketSize, cacheSize)
	require.NoError(t, err)
	return rt
}

func TestRoutingTable_InvalidConfig(t *testing.T) {
	_, err := kbucket.NewRoutingTable(zaptest.NewLogger(t), testrand.PeerID(), 0, 0)
	assert.Error(t, err)

	_, err = kbucket.NewRoutingTable(zaptest.NewLogger(t), "", 20, 0)
	assert.Error(t, err)
}

func TestRoutingTable_RejectsSelf(t *testing.T) {
	rt := newTable(t, 20, 5)

	added, err := rt.TryAddPeer(rt.Self(), true, true)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 0, rt.Size())
	assert.False(t, rt.Find(rt.Self()))
}

func TestRoutingTable_AddDuplicate(t *testing.T) {
	rt := newTable(t, 20, 5)
	id := testrand.PeerID()

	added, err := rt.TryAddPeer(id, false, true)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = rt.TryAddPeer(id, true, true)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, rt.Size())

	infos := rt.GetPeerInfos()
	require.Len(t, infos, 1)
	assert.False(t, infos[0].LastUsefulAt.IsZero(), "query result marks an existing peer useful")
}

// 25 peers sharing at least a 3-bit prefix with the local id do not fit a
// single bucket of 20.
func TestRoutingTable_SplitsSharedPrefix(t *testing.T) {
	rt := newTable(t, 20, 5)
	local := rt.Local()

	var ids []peer.ID
	for i := 0; i < 13; i++ {
		ids = append(ids, testrand.PeerIDWithCPL(local, 3))
	}
	for i := 0; i < 12; i++ {
		ids = append(ids, testrand.PeerIDWithCPL(local, 4))
	}

	for _, id := range ids {
		added, err := rt.TryAddPeer(id, true, false)
		require.NoError(t, err)
		require.True(t, added)
	}

	buckets := rt.Buckets()
	assert.GreaterOrEqual(t, len(buckets), 2)

	nonEmpty := 0
	seen := map[peer.ID]int{}
	for _, bucket := range buckets {
		assert.LessOrEqual(t, len(bucket), rt.BucketSize())
		if len(bucket) > 0 {
			nonEmpty++
		}
		for _, p := range bucket {
			seen[p.ID]++
		}
	}
	assert.GreaterOrEqual(t, nonEmpty, 2)
	assert.Len(t, seen, 25)
	for id, n := range seen {
		assert.Equal(t, 1, n, id.ShortString())
	}
	assert.Equal(t, 13, rt.NPeersForCPL(3))
	assert.Equal(t, 12, rt.NPeersForCPL(4))
}

func TestRoutingTable_BucketCapacity(t *testing.T) {
	rt := newTable(t, 4, 2)
	local := rt.Local()

	for i := 0; i < 4; i++ {
		added, err := rt.TryAddPeer(testrand.PeerIDWithCPL(local, 0), true, false)
		require.NoError(t, err)
		require.True(t, added)
	}
	// forces the first bucket to split off everything with cpl > 0
	_, err := rt.TryAddPeer(testrand.PeerIDWithCPL(local, 1), true, false)
	require.NoError(t, err)

	rejected := testrand.PeerIDWithCPL(local, 0)
	added, err := rt.TryAddPeer(rejected, true, false)
	assert.True(t, kbucket.ErrPeerRejectedNoCapacity.Has(err))
	assert.False(t, added)
	assert.Equal(t, 1, rt.CacheSize())

	for _, bucket := range rt.Buckets() {
		assert.LessOrEqual(t, len(bucket), 4)
	}
}

func TestRoutingTable_RemovePromotesReplacement(t *testing.T) {
	rt := newTable(t, 2, 2)
	local := rt.Local()

	var added, removed []peer.ID
	rt.PeerAdded = func(id peer.ID) { added = append(added, id) }
	rt.PeerRemoved = func(id peer.ID) { removed = append(removed, id) }

	a := testrand.PeerIDWithCPL(local, 0)
	b := testrand.PeerIDWithCPL(local, 0)
	c := testrand.PeerIDWithCPL(local, 0)
	far := testrand.PeerIDWithCPL(local, 2)

	for _, id := range []peer.ID{a, b, far} {
		_, err := rt.TryAddPeer(id, true, false)
		require.NoError(t, err)
	}
	_, err := rt.TryAddPeer(c, true, false)
	require.True(t, kbucket.ErrPeerRejectedNoCapacity.Has(err))

	assert.True(t, rt.RemovePeer(a))
	assert.False(t, rt.RemovePeer(a))

	assert.True(t, rt.Find(c), "cached candidate is promoted")
	assert.False(t, rt.Find(a))
	assert.Equal(t, 0, rt.CacheSize())
	assert.Equal(t, []peer.ID{a}, removed)
	assert.Equal(t, []peer.ID{a, b, far, c}, added)
}

func TestRoutingTable_CollapsesTrailingBuckets(t *testing.T) {
	rt := newTable(t, 2, 0)
	local := rt.Local()

	near := testrand.PeerIDWithCPL(local, 3)
	for _, id := range []peer.ID{testrand.PeerIDWithCPL(local, 0), testrand.PeerIDWithCPL(local, 0), near} {
		_, err := rt.TryAddPeer(id, false, false)
		require.NoError(t, err)
	}
	require.Greater(t, len(rt.Buckets()), 1)

	require.True(t, rt.RemovePeer(near))
	buckets := rt.Buckets()
	assert.Len(t, buckets, 1)
	assert.Len(t, buckets[0], 2)
}

func TestRoutingTable_NearestPeersMatchesBruteForce(t *testing.T) {
	rt := newTable(t, 5, 0)

	for i := 0; i < 300; i++ {
		_, _ = rt.TryAddPeer(testrand.PeerID(), false, false)
	}
	all := rt.GetPeerInfos()
	require.Equal(t, rt.Size(), len(all))

	for i := 0; i < 50; i++ {
		target := testrand.Key()
		if i == 0 {
			target = rt.Local()
		}
		for _, count := range []int{1, 5, 8, 20, len(all) + 3} {
			got := rt.NearestPeers(target, count)

			expected := append([]kbucket.PeerInfo(nil), all...)
			sort.Slice(expected, func(a, b int) bool {
				return keyspace.Closer(expected[a].Key, expected[b].Key, target)
			})
			if len(expected) > count {
				expected = expected[:count]
			}
			want := make([]peer.ID, 0, len(expected))
			for _, p := range expected {
				want = append(want, p.ID)
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("nearest peers mismatch (-want +got):\n%s", diff)
			}
		}
	}
}

func TestRoutingTable_NearestPeersEmpty(t *testing.T) {
	rt := newTable(t, 20, 5)
	assert.Empty(t, rt.NearestPeers(testrand.Key(), 10))
	assert.Equal(t, peer.ID(""), rt.NearestPeer(testrand.Key()))
	assert.Empty(t, rt.NearestPeers(testrand.Key(), 0))
}

func TestRoutingTable_Timestamps(t *testing.T) {
	rt := newTable(t, 20, 5)
	id := testrand.PeerID()

	assert.False(t, rt.UpdateLastUsefulAt(id, time.Now()))

	_, err := rt.TryAddPeer(id, false, true)
	require.NoError(t, err)

	at := time.Now().Add(time.Hour)
	assert.True(t, rt.UpdateLastUsefulAt(id, at))
	assert.True(t, rt.UpdateLastSuccessfulOutboundQueryAt(id, at))

	infos := rt.GetPeerInfos()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].LastUsefulAt.Equal(at))
	assert.True(t, infos[0].LastSuccessfulOutboundQueryAt.Equal(at))
}

func TestRoutingTable_StaleCPLs(t *testing.T) {
	rt := newTable(t, 20, 5)
	now := time.Now()

	assert.Equal(t, []int{0}, rt.StaleCPLs(now, time.Minute))

	rt.ResetCPLRefreshedAt(testrand.Key(), now)
	assert.Empty(t, rt.StaleCPLs(now, time.Minute))
	assert.Equal(t, []int{0}, rt.StaleCPLs(now.Add(time.Hour), time.Minute))
}

func TestRoutingTable_Concurrent(t *testing.T) {
	rt := newTable(t, 20, 5)
	ids := testrand.PeerIDs(200)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(ids); i += 8 {
				_, _ = rt.TryAddPeer(ids[i], i%2 == 0, i%3 == 0)
				_ = rt.NearestPeers(ids[i].Key(), 10)
				if i%5 == 0 {
					rt.RemovePeer(ids[i])
				}
			}
		}(w)
	}
	wg.Wait()

	seen := map[peer.ID]bool{}
	for _, bucket := range rt.Buckets() {
		assert.LessOrEqual(t, len(bucket), 20)
		for _, p := range bucket {
			assert.False(t, seen[p.ID])
			seen[p.ID] = true
		}
	}
	assert.Equal(t, len(seen), rt.Size())
}
