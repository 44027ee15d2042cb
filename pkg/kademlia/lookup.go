// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/dht/pkg/kbucket"
	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/qpeerset"
)

// runLookupWithFollowup runs a lookup for target seeded from the routing
// table. When the lookup completes, the peers of the result that were heard
// of but never contacted are queried as well. Peers whose request was still
// in flight when the lookup ended are not asked again.
//
// fn and stop are called from several goroutines.
func (k *Kademlia) runLookupWithFollowup(ctx context.Context, target keyspace.ID, fn queryFn, stop stopFn) (_ *LookupResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if !k.lookups.Start() {
		return nil, context.Canceled
	}
	defer k.lookups.Done()

	seeds := k.routingTable.NearestPeers(target, k.config.BucketSize)
	if len(seeds) == 0 {
		return nil, kbucket.ErrLookupFailure.New("lookup for %s", target)
	}

	q := newQuery(k.log.Named("query"), k.self.ID, target, seeds, k.config, fn, stop, k)
	res, err := q.run(ctx)
	if err != nil {
		return nil, err
	}
	if !res.Completed {
		return res, nil
	}

	k.routingTable.ResetCPLRefreshedAt(target, time.Now())

	var group errgroup.Group
	group.SetLimit(k.config.Alpha)
	for i, p := range res.Peers {
		if res.State[i] != qpeerset.PeerHeard {
			continue
		}
		i, p := i, p
		group.Go(func() error {
			if stop() || ctx.Err() != nil {
				return nil
			}

			closer, err := fn(ctx, p)
			if err != nil {
				if ctx.Err() == nil {
					k.peerFailed(p, err)
				}
				res.State[i] = qpeerset.PeerUnreachable
				return nil
			}

			k.peerResponded(p)
			for _, info := range closer {
				if info.ID != k.self.ID {
					k.peerHeard(info)
				}
			}
			res.State[i] = qpeerset.PeerQueried
			return nil
		})
	}
	_ = group.Wait()

	if stop() || ctx.Err() != nil {
		res.Completed = false
	}

	k.log.Debug("lookup finished",
		zap.Stringer("target", target),
		zap.Int("peers", len(res.Peers)),
		zap.Bool("completed", res.Completed),
	)
	return res, nil
}
