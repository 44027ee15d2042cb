// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/qpeerset"
)

// FindPeer searches the network for id and returns how to reach it. found
// is false when the lookup ended without connecting to the peer.
func (k *Kademlia) FindPeer(ctx context.Context, id peer.ID) (_ peer.AddrInfo, found bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := id.Validate(); err != nil {
		return peer.AddrInfo{}, false, Error.Wrap(err)
	}
	if id == k.self.ID {
		return k.self, true, nil
	}
	if info, ok := k.connectedInfo(id); ok {
		return info, true, nil
	}

	var mu sync.Mutex
	var dialed bool
	lookupFn := func(ctx context.Context, p peer.ID) ([]peer.AddrInfo, error) {
		closer, err := k.findNodeFn(id.Bytes())(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, info := range closer {
			if info.ID != id {
				continue
			}
			mu.Lock()
			alreadyDialed := dialed
			dialed = true
			mu.Unlock()
			if alreadyDialed {
				break
			}

			k.addrs.AddAddrs(info.ID, info.Addrs)
			if err := k.pool.Connect(ctx, k.peerInfo(id)); err != nil {
				k.log.Debug("dialing found peer failed", zap.Stringer("peer", id), zap.Error(err))
				mu.Lock()
				dialed = false
				mu.Unlock()
			}
			break
		}
		return closer, nil
	}
	stop := func() bool { return k.network.Connected(id) }

	res, err := k.runLookupWithFollowup(ctx, id.Key(), lookupFn, stop)
	if err != nil {
		return peer.AddrInfo{}, false, err
	}

	if info, ok := k.connectedInfo(id); ok {
		return info, true, nil
	}
	if !res.Completed {
		if err := ctx.Err(); err != nil {
			return peer.AddrInfo{}, false, err
		}
	}
	return peer.AddrInfo{}, false, nil
}

// GetClosestPeers runs a lookup for key and returns the closest peers that
// responded or were never found unreachable.
func (k *Kademlia) GetClosestPeers(ctx context.Context, key []byte) (_ []peer.ID, err error) {
	defer mon.Task()(&ctx)(&err)

	res, err := k.runLookupWithFollowup(ctx, keyspace.Key(key), k.findNodeFn(key), func() bool { return false })
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]peer.ID, 0, len(res.Peers))
	for i, p := range res.Peers {
		if res.State[i] != qpeerset.PeerUnreachable {
			ids = append(ids, p)
		}
	}
	return ids, nil
}

// connectedInfo returns the addresses of id when there is a live connection.
func (k *Kademlia) connectedInfo(id peer.ID) (peer.AddrInfo, bool) {
	if !k.network.Connected(id) {
		return peer.AddrInfo{}, false
	}
	info := k.peerInfo(id)
	for _, connected := range k.network.ConnectedPeers() {
		if connected.ID == id {
			k.addrs.AddAddrs(id, connected.Addrs)
			info = k.peerInfo(id)
			break
		}
	}
	return info, true
}
