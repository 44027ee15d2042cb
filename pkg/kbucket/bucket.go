// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kbucket

import (
	"time"

	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
)

// PeerInfo is the routing table's view of a peer.
type PeerInfo struct {
	ID  peer.ID
	Key keyspace.ID

	// Replaceable peers may be evicted to make room for new peers.
	Replaceable bool

	// LastUsefulAt is the last time the peer was useful to us, that is,
	// it answered a query and was added to the table as a result.
	LastUsefulAt time.Time
	// LastSuccessfulOutboundQueryAt is the last time we successfully queried the peer.
	LastSuccessfulOutboundQueryAt time.Time
	// AddedAt is the time the peer was added to the routing table.
	AddedAt time.Time
}

// Bucket holds up to capacity peers, most recently added first.
//
// Bucket is not safe for concurrent use; RoutingTable serializes access.
type Bucket struct {
	capacity int
	peers    []*PeerInfo
}

// NewBucket returns an empty bucket with the given capacity.
func NewBucket(capacity int) *Bucket {
	return &Bucket{capacity: capacity}
}

// Len returns the number of peers in the bucket.
func (b *Bucket) Len() int { return len(b.peers) }

// Capacity returns the maximum number of peers in the bucket.
func (b *Bucket) Capacity() int { return b.capacity }

// Peers returns a copy of all peer entries.
func (b *Bucket) Peers() []PeerInfo {
	out := make([]PeerInfo, 0, len(b.peers))
	for _, p := range b.peers {
		out = append(out, *p)
	}
	return out
}

// IDs returns the ids of all peers in the bucket.
func (b *Bucket) IDs() []peer.ID {
	out := make([]peer.ID, 0, len(b.peers))
	for _, p := range b.peers {
		out = append(out, p.ID)
	}
	return out
}

// Get returns the entry for id or nil.
func (b *Bucket) Get(id peer.ID) *PeerInfo {
	for _, p := range b.peers {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Has returns whether id is in the bucket.
func (b *Bucket) Has(id peer.ID) bool { return b.Get(id) != nil }

// Remove removes id and returns whether it was present.
func (b *Bucket) Remove(id peer.ID) bool {
	for i, p := range b.peers {
		if p.ID == id {
			copy(b.peers[i:], b.peers[i+1:])
			b.peers[len(b.peers)-1] = nil
			b.peers = b.peers[:len(b.peers)-1]
			return true
		}
	}
	return false
}

// Min returns the smallest entry according to lessThan, or nil for an
// empty bucket.
func (b *Bucket) Min(lessThan func(a, b *PeerInfo) bool) *PeerInfo {
	var min *PeerInfo
	for _, p := range b.peers {
		if min == nil || lessThan(p, min) {
			min = p
		}
	}
	return min
}

// weakest returns the replaceable peer that was useful the longest time ago.
func (b *Bucket) weakest() *PeerInfo {
	var min *PeerInfo
	for _, p := range b.peers {
		if !p.Replaceable {
			continue
		}
		if min == nil || p.LastUsefulAt.Before(min.LastUsefulAt) {
			min = p
		}
	}
	return min
}

// TryAdd inserts info. It returns false without error when the peer is
// already present. A full bucket evicts its weakest replaceable peer; when
// there is none, ErrPeerRejectedNoCapacity is returned and the bucket is
// left unchanged.
func (b *Bucket) TryAdd(info PeerInfo) (bool, error) {
	added, _, err := b.tryAdd(info)
	return added, err
}

func (b *Bucket) tryAdd(info PeerInfo) (added bool, evicted *PeerInfo, err error) {
	if b.Has(info.ID) {
		return false, nil, nil
	}

	if len(b.peers) < b.capacity {
		b.pushFront(&info)
		return true, nil, nil
	}

	weakest := b.weakest()
	if weakest == nil {
		return false, nil, ErrPeerRejectedNoCapacity.New("%s", info.ID.ShortString())
	}

	b.Remove(weakest.ID)
	b.pushFront(&info)
	return true, weakest, nil
}

func (b *Bucket) pushFront(p *PeerInfo) {
	b.peers = append(b.peers, nil)
	copy(b.peers[1:], b.peers)
	b.peers[0] = p
}

// Split moves every peer sharing more than cpl leading bits with local into
// a new bucket and returns it.
func (b *Bucket) Split(cpl int, local keyspace.ID) *Bucket {
	out := NewBucket(b.capacity)
	kept := make([]*PeerInfo, 0, len(b.peers))
	for _, p := range b.peers {
		if keyspace.CommonPrefixLen(p.Key, local) > cpl {
			out.peers = append(out.peers, p)
		} else {
			kept = append(kept, p)
		}
	}
	b.peers = kept
	return out
}
