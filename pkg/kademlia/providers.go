// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"storj.io/dht/internal/errs2"
	"storj.io/dht/pkg/kbucket"
	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
)

// Provide announces that the local peer can provide c to the peers closest
// to it.
func (k *Kademlia) Provide(ctx context.Context, c cid.Cid) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !c.Defined() {
		return Error.New("undefined content id")
	}
	key := []byte(c.Hash())

	k.providers.AddProvider(key, k.self.ID)

	closest, err := k.GetClosestPeers(ctx, key)
	if err != nil {
		return err
	}

	req := &pb.Message{
		Type:          pb.Message_ADD_PROVIDER,
		Key:           key,
		ProviderPeers: pb.FromAddrInfos([]peer.AddrInfo{k.self}),
	}

	var group errs2.Group
	for _, p := range closest {
		p := p
		group.Go(func() error {
			_, err := k.sendWithRetry(ctx, p, req)
			if err != nil {
				k.log.Debug("announcing provider failed", zap.Stringer("peer", p), zap.Error(err))
			}
			return err
		})
	}
	failed := group.Wait()

	k.log.Debug("provided",
		zap.Stringer("cid", c),
		zap.Int("peers", len(closest)),
		zap.Int("failed", len(failed)),
	)
	return ctx.Err()
}

// FindProviders searches for peers providing c and calls found for each
// distinct provider, at most count times when count > 0. Calls to found
// do not overlap and all of them happen before FindProviders returns.
func (k *Kademlia) FindProviders(ctx context.Context, c cid.Cid, count int, found func(peer.AddrInfo)) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !c.Defined() {
		return Error.New("undefined content id")
	}
	key := []byte(c.Hash())

	var mu sync.Mutex
	emitted := newPeerSet(count)
	emit := func(info peer.AddrInfo) {
		if !emitted.TryAdd(info.ID) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		found(info)
	}

	for _, p := range k.providers.GetProviders(key) {
		emit(k.peerInfo(p))
	}
	if emitted.Full() {
		return nil
	}

	lookupFn := func(ctx context.Context, p peer.ID) ([]peer.AddrInfo, error) {
		resp, err := k.send(ctx, p, &pb.Message{Type: pb.Message_GET_PROVIDERS, Key: key})
		if err != nil {
			return nil, err
		}
		for _, info := range pb.AddrInfos(resp.ProviderPeers) {
			if info.ID == k.self.ID {
				continue
			}
			k.addrs.AddAddrs(info.ID, info.Addrs)
			emit(k.peerInfo(info.ID))
		}
		return pb.AddrInfos(resp.CloserPeers), nil
	}

	_, err = k.runLookupWithFollowup(ctx, keyspace.Key(key), lookupFn, emitted.Full)
	if err != nil {
		if kbucket.ErrLookupFailure.Has(err) && emitted.Size() > 0 {
			return nil
		}
		return err
	}
	return nil
}
