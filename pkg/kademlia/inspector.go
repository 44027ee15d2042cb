// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"

	"storj.io/dht/pkg/kbucket"
	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
)

// Inspector exposes kademlia internals for debugging
type Inspector struct {
	dht *Kademlia
}

// NewInspector creates an Inspector
func NewInspector(kad *Kademlia) *Inspector {
	return &Inspector{dht: kad}
}

// CountPeers returns the number of peers in the routing table
func (srv *Inspector) CountPeers() int {
	return srv.dht.routingTable.Size()
}

// Bucket describes a single bucket of the routing table.
type Bucket struct {
	Index int
	Peers []kbucket.PeerInfo
}

// GetBuckets returns all buckets for current kademlia instance
func (srv *Inspector) GetBuckets() []Bucket {
	buckets := srv.dht.routingTable.Buckets()
	out := make([]Bucket, 0, len(buckets))
	for i, peers := range buckets {
		out = append(out, Bucket{Index: i, Peers: peers})
	}
	return out
}

// FindNear returns up to limit peers from the routing table closest to start
func (srv *Inspector) FindNear(start keyspace.ID, limit int) []peer.AddrInfo {
	ids := srv.dht.routingTable.NearestPeers(start, limit)
	infos := make([]peer.AddrInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, srv.dht.peerInfo(id))
	}
	return infos
}

// PingPeer sends a FIND_NODE request for the local peer to id and reports
// whether it answered.
func (srv *Inspector) PingPeer(ctx context.Context, id peer.ID) (ok bool, err error) {
	defer mon.Task()(&ctx)(&err)

	self := srv.dht.self.ID
	_, err = srv.dht.send(ctx, id, &pb.Message{Type: pb.Message_FIND_NODE, Key: self.Bytes()})
	if err != nil {
		srv.dht.peerFailed(id, err)
		return false, Error.Wrap(err)
	}
	srv.dht.peerResponded(id)
	return true, nil
}

// LookupPeer triggers a lookup and returns the peer the network found.
func (srv *Inspector) LookupPeer(ctx context.Context, id peer.ID) (peer.AddrInfo, error) {
	info, found, err := srv.dht.FindPeer(ctx, id)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	if !found {
		return peer.AddrInfo{}, ErrNotFound.New("peer %s", id)
	}
	return info, nil
}
