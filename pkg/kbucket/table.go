// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kbucket

import (
	"sort"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
)

var (
	// Error is the default routing table error class.
	Error = errs.Class("routing table error")
	// ErrPeerRejectedNoCapacity is returned when a full bucket has no
	// replaceable peer to make room.
	ErrPeerRejectedNoCapacity = errs.Class("peer rejected; insufficient capacity")
	// ErrLookupFailure is returned when a lookup has no peers to start from.
	ErrLookupFailure = errs.Class("failed to find any peer in table")
)

// RoutingTable keeps peers in buckets ordered by the length of the prefix
// they share with the local id. Bucket i holds peers sharing exactly i bits,
// except the last bucket which holds every peer sharing at least that many.
//
// All methods are safe for concurrent use. A single mutex guards the whole
// table, so every operation observes and produces a consistent state as if
// the table had one owner.
type RoutingTable struct {
	log        *zap.Logger
	self       peer.ID
	local      keyspace.ID
	bucketSize int

	mu             sync.RWMutex
	buckets        []*Bucket
	cache          *replacementCache
	cplRefreshedAt map[int]time.Time

	// PeerAdded is called after a peer joins the table.
	PeerAdded func(peer.ID)
	// PeerRemoved is called after a peer leaves the table.
	PeerRemoved func(peer.ID)
}

// NewRoutingTable returns an empty routing table for self.
func NewRoutingTable(log *zap.Logger, self peer.ID, bucketSize, cacheSize int) (*RoutingTable, error) {
	if bucketSize <= 0 {
		return nil, Error.New("bucket size must be positive, got %d", bucketSize)
	}
	if err := self.Validate(); err != nil {
		return nil, Error.Wrap(err)
	}
	return &RoutingTable{
		log:            log,
		self:           self,
		local:          self.Key(),
		bucketSize:     bucketSize,
		buckets:        []*Bucket{NewBucket(bucketSize)},
		cache:          newReplacementCache(cacheSize),
		cplRefreshedAt: make(map[int]time.Time),
	}, nil
}

// Self returns the local peer id.
func (rt *RoutingTable) Self() peer.ID { return rt.self }

// Local returns the keyspace position of the local peer.
func (rt *RoutingTable) Local() keyspace.ID { return rt.local }

// BucketSize returns the capacity of each bucket.
func (rt *RoutingTable) BucketSize() int { return rt.bucketSize }

// TryAddPeer adds p to the table. queryPeer marks a peer that was learned by
// answering one of our queries, which counts as being useful. The result is
// false without error when the peer is the local peer or already present.
func (rt *RoutingTable) TryAddPeer(p peer.ID, queryPeer, replaceable bool) (bool, error) {
	rt.mu.Lock()
	added, evicted, err := rt.addPeer(p, queryPeer, replaceable)
	rt.mu.Unlock()

	if evicted != "" && rt.PeerRemoved != nil {
		rt.PeerRemoved(evicted)
	}
	if added && rt.PeerAdded != nil {
		rt.PeerAdded(p)
	}
	return added, err
}

func (rt *RoutingTable) addPeer(p peer.ID, queryPeer, replaceable bool) (added bool, evicted peer.ID, err error) {
	if p == rt.self || p == "" {
		return false, "", nil
	}

	key := p.Key()
	cpl := keyspace.CommonPrefixLen(key, rt.local)
	bucket := rt.buckets[rt.bucketIndex(cpl)]

	now := time.Now()
	var lastUsefulAt time.Time
	if queryPeer {
		lastUsefulAt = now
	}

	if existing := bucket.Get(p); existing != nil {
		if existing.LastUsefulAt.IsZero() && queryPeer {
			existing.LastUsefulAt = lastUsefulAt
		}
		return false, "", nil
	}

	last := len(rt.buckets) - 1
	if rt.bucketIndex(cpl) == last && bucket.Len() >= rt.bucketSize && len(rt.buckets) < keyspace.Bits {
		rt.nextBucket()
		bucket = rt.buckets[rt.bucketIndex(cpl)]
	}

	added, weakest, err := bucket.tryAdd(PeerInfo{
		ID:                            p,
		Key:                           key,
		Replaceable:                   replaceable,
		LastUsefulAt:                  lastUsefulAt,
		LastSuccessfulOutboundQueryAt: now,
		AddedAt:                       now,
	})
	if err != nil {
		rt.cache.add(cpl, candidate{id: p, replaceable: replaceable})
		rt.log.Debug("peer rejected", zap.Stringer("peer", p), zap.Int("cpl", cpl))
		return false, "", err
	}
	if added {
		rt.cache.remove(cpl, p)
	}
	if weakest != nil {
		evicted = weakest.ID
		rt.log.Debug("evicted replaceable peer", zap.Stringer("peer", evicted))
	}
	return added, evicted, nil
}

// nextBucket splits the last bucket, repeating while the new last bucket is
// still full.
func (rt *RoutingTable) nextBucket() {
	bucket := rt.buckets[len(rt.buckets)-1]
	next := bucket.Split(len(rt.buckets)-1, rt.local)
	rt.buckets = append(rt.buckets, next)

	if next.Len() >= rt.bucketSize && len(rt.buckets) < keyspace.Bits {
		rt.nextBucket()
	}
}

// RemovePeer removes p from the table and promotes a cached replacement into
// its bucket. It returns whether p was present.
func (rt *RoutingTable) RemovePeer(p peer.ID) bool {
	rt.mu.Lock()
	removed, promoted := rt.removePeer(p)
	rt.mu.Unlock()

	if removed && rt.PeerRemoved != nil {
		rt.PeerRemoved(p)
	}
	if promoted != "" && rt.PeerAdded != nil {
		rt.PeerAdded(promoted)
	}
	return removed
}

func (rt *RoutingTable) removePeer(p peer.ID) (removed bool, promoted peer.ID) {
	key := p.Key()
	cpl := keyspace.CommonPrefixLen(key, rt.local)
	rt.cache.remove(cpl, p)

	bucketID := rt.bucketIndex(cpl)
	bucket := rt.buckets[bucketID]
	if !bucket.Remove(p) {
		return false, ""
	}

	last := bucketID == len(rt.buckets)-1
	c, ok := rt.cache.pop(func(candidateCPL int) bool {
		if last {
			return candidateCPL >= bucketID
		}
		return candidateCPL == bucketID
	})
	if ok {
		now := time.Now()
		bucket.pushFront(&PeerInfo{
			ID:          c.id,
			Key:         c.id.Key(),
			Replaceable: c.replaceable,
			AddedAt:     now,
		})
		promoted = c.id
		rt.log.Debug("promoted replacement", zap.Stringer("peer", promoted), zap.Int("bucket", bucketID))
	}

	for len(rt.buckets) > 1 && rt.buckets[len(rt.buckets)-1].Len() == 0 {
		rt.buckets[len(rt.buckets)-1] = nil
		rt.buckets = rt.buckets[:len(rt.buckets)-1]
	}
	return true, promoted
}

// bucketIndex returns the index of the bucket responsible for cpl.
func (rt *RoutingTable) bucketIndex(cpl int) int {
	if cpl >= len(rt.buckets) {
		return len(rt.buckets) - 1
	}
	return cpl
}

// Find returns whether p is in the table.
func (rt *RoutingTable) Find(p peer.ID) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	cpl := keyspace.CommonPrefixLen(p.Key(), rt.local)
	return rt.buckets[rt.bucketIndex(cpl)].Has(p)
}

// NearestPeer returns the single closest peer to target or "".
func (rt *RoutingTable) NearestPeer(target keyspace.ID) peer.ID {
	peers := rt.NearestPeers(target, 1)
	if len(peers) > 0 {
		return peers[0]
	}
	return ""
}

// NearestPeers returns up to count peers closest to target, closest first.
func (rt *RoutingTable) NearestPeers(target keyspace.ID, count int) []peer.ID {
	if count <= 0 {
		return nil
	}

	rt.mu.RLock()
	cpl := rt.bucketIndex(keyspace.CommonPrefixLen(target, rt.local))

	// peers in the target's bucket share more bits with target than any other
	candidates := rt.buckets[cpl].Peers()

	// peers in the buckets to the right share exactly cpl bits with target
	if len(candidates) < count {
		for i := cpl + 1; i < len(rt.buckets); i++ {
			candidates = append(candidates, rt.buckets[i].Peers()...)
		}
	}

	// peers in bucket i to the left share exactly i bits with target
	for i := cpl - 1; i >= 0 && len(candidates) < count; i-- {
		candidates = append(candidates, rt.buckets[i].Peers()...)
	}
	rt.mu.RUnlock()

	sort.Slice(candidates, func(i, k int) bool {
		return keyspace.Closer(candidates[i].Key, candidates[k].Key, target)
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}

	ids := make([]peer.ID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

// Size returns the number of peers in the table.
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	total := 0
	for _, b := range rt.buckets {
		total += b.Len()
	}
	return total
}

// ListPeers returns every peer in the table.
func (rt *RoutingTable) ListPeers() []peer.ID {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var ids []peer.ID
	for _, b := range rt.buckets {
		ids = append(ids, b.IDs()...)
	}
	return ids
}

// GetPeerInfos returns a copy of every peer entry in the table.
func (rt *RoutingTable) GetPeerInfos() []PeerInfo {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var infos []PeerInfo
	for _, b := range rt.buckets {
		infos = append(infos, b.Peers()...)
	}
	return infos
}

// Buckets returns a copy of the entries of every bucket, in bucket order.
func (rt *RoutingTable) Buckets() [][]PeerInfo {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	out := make([][]PeerInfo, 0, len(rt.buckets))
	for _, b := range rt.buckets {
		out = append(out, b.Peers())
	}
	return out
}

// NPeersForCPL returns the number of peers sharing exactly cpl bits with the
// local id.
func (rt *RoutingTable) NPeersForCPL(cpl int) int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if cpl < len(rt.buckets)-1 {
		return rt.buckets[cpl].Len()
	}

	count := 0
	for _, p := range rt.buckets[len(rt.buckets)-1].peers {
		if keyspace.CommonPrefixLen(p.Key, rt.local) == cpl {
			count++
		}
	}
	return count
}

// UpdateLastSuccessfulOutboundQueryAt records a successful query to p.
func (rt *RoutingTable) UpdateLastSuccessfulOutboundQueryAt(p peer.ID, t time.Time) bool {
	return rt.update(p, func(info *PeerInfo) { info.LastSuccessfulOutboundQueryAt = t })
}

// UpdateLastUsefulAt records that p was useful.
func (rt *RoutingTable) UpdateLastUsefulAt(p peer.ID, t time.Time) bool {
	return rt.update(p, func(info *PeerInfo) { info.LastUsefulAt = t })
}

func (rt *RoutingTable) update(p peer.ID, fn func(*PeerInfo)) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	cpl := keyspace.CommonPrefixLen(p.Key(), rt.local)
	info := rt.buckets[rt.bucketIndex(cpl)].Get(p)
	if info == nil {
		return false
	}
	fn(info)
	return true
}

// ResetCPLRefreshedAt marks the bucket covering key as refreshed at t.
func (rt *RoutingTable) ResetCPLRefreshedAt(key keyspace.ID, t time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	cpl := rt.bucketIndex(keyspace.CommonPrefixLen(key, rt.local))
	rt.cplRefreshedAt[cpl] = t
}

// StaleCPLs returns every bucket index that was not refreshed within
// interval before now.
func (rt *RoutingTable) StaleCPLs(now time.Time, interval time.Duration) []int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var stale []int
	for cpl := range rt.buckets {
		if refreshed, ok := rt.cplRefreshedAt[cpl]; !ok || now.Sub(refreshed) >= interval {
			stale = append(stale, cpl)
		}
	}
	return stale
}

// CacheSize returns the number of cached replacement candidates.
func (rt *RoutingTable) CacheSize() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cache.len()
}
