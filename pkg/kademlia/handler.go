// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"

	"github.com/multiformats/go-multihash"
	"go.uber.org/zap"

	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/record"
	"storj.io/dht/pkg/transport"
)

var _ transport.Handler = (*Kademlia)(nil)

// HandleMessage answers a request from a remote peer using local state only.
func (k *Kademlia) HandleMessage(ctx context.Context, from peer.AddrInfo, req *pb.Message) (_ *pb.Message, err error) {
	defer mon.Task()(&ctx)(&err)

	if req == nil {
		return nil, Error.New("empty request")
	}

	if from.ID != "" && from.ID != k.self.ID {
		k.addrs.AddAddrs(from.ID, from.Addrs)
		if _, err := k.routingTable.TryAddPeer(from.ID, false, true); err != nil {
			k.log.Debug("sender not added to routing table", zap.Stringer("peer", from.ID), zap.Error(err))
		}
	}

	switch req.Type {
	case pb.Message_FIND_NODE:
		return &pb.Message{
			Type:        req.Type,
			Key:         req.Key,
			CloserPeers: k.closerPeers(req.Key, from.ID),
		}, nil

	case pb.Message_GET_PROVIDERS:
		if _, err := multihash.Cast(req.Key); err != nil {
			return nil, Error.New("invalid provider key: %v", err)
		}
		var providers []peer.AddrInfo
		for _, p := range k.providers.GetProviders(req.Key) {
			providers = append(providers, k.peerInfo(p))
		}
		return &pb.Message{
			Type:          req.Type,
			Key:           req.Key,
			ProviderPeers: pb.FromAddrInfos(providers),
			CloserPeers:   k.closerPeers(req.Key, from.ID),
		}, nil

	case pb.Message_GET_VALUE:
		rec, err := k.records.Get(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		return &pb.Message{
			Type:        req.Type,
			Key:         req.Key,
			Record:      rec,
			CloserPeers: k.closerPeers(req.Key, from.ID),
		}, nil

	case pb.Message_PUT_VALUE:
		if err := record.ValidateFor(req.Key, req.Record); err != nil {
			k.log.Debug("rejected record", zap.Stringer("from", from.ID), zap.Error(err))
			return nil, err
		}
		if _, err := k.records.Put(ctx, req.Record); err != nil {
			return nil, err
		}
		return &pb.Message{Type: req.Type, Key: req.Key, Record: req.Record}, nil

	case pb.Message_ADD_PROVIDER:
		if _, err := multihash.Cast(req.Key); err != nil {
			return nil, Error.New("invalid provider key: %v", err)
		}
		for _, info := range pb.AddrInfos(req.ProviderPeers) {
			if info.ID != from.ID {
				k.log.Debug("provider announced by another peer",
					zap.Stringer("from", from.ID),
					zap.Stringer("provider", info.ID))
				continue
			}
			k.addrs.AddAddrs(info.ID, info.Addrs)
			k.providers.AddProvider(req.Key, info.ID)
		}
		return &pb.Message{Type: req.Type, Key: req.Key}, nil

	default:
		return nil, Error.New("unknown message type %v", req.Type)
	}
}

// closerPeers returns the peers of the routing table closest to key, except
// the requester.
func (k *Kademlia) closerPeers(key []byte, requester peer.ID) []*pb.Peer {
	ids := k.routingTable.NearestPeers(keyspace.Key(key), k.config.BucketSize)
	infos := make([]peer.AddrInfo, 0, len(ids))
	for _, id := range ids {
		if id == requester || id == k.self.ID {
			continue
		}
		infos = append(infos, k.peerInfo(id))
	}
	return pb.FromAddrInfos(infos)
}
