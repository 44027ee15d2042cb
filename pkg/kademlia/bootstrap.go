// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/dht/pkg/kbucket"
	"storj.io/dht/pkg/keyspace"
)

// maxCplForRefresh is the deepest bucket refreshed with a random key. Keys
// for deeper buckets are too expensive to find.
const maxCplForRefresh = 15

// Bootstrap contacts the configured bootstrap peers, seeds the routing table
// with every connected peer and looks up the local peer to populate the
// table.
func (k *Kademlia) Bootstrap(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer k.bootstrapFinished.Release()

	if !k.lookups.Start() {
		return context.Canceled
	}
	defer k.lookups.Done()

	if len(k.bootstrapPeers) == 0 {
		k.log.Warn("No bootstrap address specified.")
	}

	var group errs.Group
	for _, info := range k.bootstrapPeers {
		if info.ID == k.self.ID {
			continue
		}
		info := info
		k.addrs.AddAddrs(info.ID, info.Addrs)
		err := retry(ctx, k.config.BootstrapRetries, func() error {
			return k.pool.Connect(ctx, info)
		})
		if err != nil {
			k.log.Debug("bootstrap peer unreachable", zap.Stringer("peer", info.ID), zap.Error(err))
			group.Add(err)
		}
	}

	for _, info := range k.network.ConnectedPeers() {
		k.addrs.AddAddrs(info.ID, info.Addrs)
		if _, err := k.routingTable.TryAddPeer(info.ID, false, true); err != nil {
			k.log.Debug("connected peer not added to routing table", zap.Stringer("peer", info.ID), zap.Error(err))
		}
	}

	if k.routingTable.Size() == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := group.Err(); err != nil {
			return ErrBootstrap.Wrap(err)
		}
		return ErrBootstrap.New("no peers to bootstrap from")
	}

	return k.lookupSelf(ctx)
}

// WaitForBootstrap waits for the first bootstrap attempt to finish. It
// returns false when ctx was canceled first.
func (k *Kademlia) WaitForBootstrap(ctx context.Context) bool {
	return k.bootstrapFinished.WaitContext(ctx)
}

// RunRefresh occasionally refreshes stale buckets until ctx is canceled or
// the node is closed.
func (k *Kademlia) RunRefresh(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-k.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	if !k.WaitForBootstrap(ctx) {
		return ctx.Err()
	}

	return k.refresh.Run(ctx, func(ctx context.Context) error {
		if err := k.refreshBuckets(ctx, time.Now()); err != nil {
			k.log.Warn("bucket refresh failed", zap.Error(err))
		}
		return nil
	})
}

// TriggerRefresh refreshes the buckets now and waits for it to finish. It
// blocks until RunRefresh is running and returns at once after Close.
func (k *Kademlia) TriggerRefresh() { k.refresh.TriggerWait() }

// refreshBuckets looks up a random key for every bucket not refreshed within
// the refresh interval and then looks up the local peer.
func (k *Kademlia) refreshBuckets(ctx context.Context, now time.Time) error {
	var group errs.Group
	for _, cpl := range k.routingTable.StaleCPLs(now, k.config.RefreshInterval) {
		if cpl > maxCplForRefresh {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		key := keyspace.GenRandomKeyAtCPL(k.routingTable.Local(), cpl)
		_, err := k.runLookupWithFollowup(ctx, keyspace.Key(key), k.findNodeFn(key), func() bool { return false })
		if err != nil {
			group.Add(err)
			continue
		}
		k.log.Debug("refreshed bucket", zap.Int("cpl", cpl))
	}
	group.Add(k.lookupSelf(ctx))
	return group.Err()
}

func (k *Kademlia) lookupSelf(ctx context.Context) error {
	self := k.self.ID.Bytes()
	_, err := k.runLookupWithFollowup(ctx, keyspace.Key(self), k.findNodeFn(self), func() bool { return false })
	if err != nil {
		if kbucket.ErrLookupFailure.Has(err) {
			return err
		}
		return Error.Wrap(err)
	}
	return ctx.Err()
}
