// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storj.io/dht/pkg/kbucket"
	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/qpeerset"
)

// queryFn sends one request to p and returns the peers p reported as closer
// to the target.
type queryFn func(ctx context.Context, p peer.ID) ([]peer.AddrInfo, error)

// stopFn reports whether a lookup found what it was looking for.
type stopFn func() bool

// peerObserver is told about the outcome of every request a lookup makes.
// It is called from worker goroutines.
type peerObserver interface {
	peerResponded(p peer.ID)
	peerFailed(p peer.ID, err error)
	peerHeard(info peer.AddrInfo)
}

// LookupResult is the outcome of a lookup.
type LookupResult struct {
	// Peers are the closest peers found, closest first.
	Peers []peer.ID
	// State is the final state of each entry in Peers.
	State []qpeerset.PeerState
	// Completed is false when the lookup was cut short by a stop condition
	// or by cancellation.
	Completed bool
}

// Queried returns the peers that responded.
func (res *LookupResult) Queried() []peer.ID {
	var ids []peer.ID
	for i, p := range res.Peers {
		if res.State[i] == qpeerset.PeerQueried {
			ids = append(ids, p)
		}
	}
	return ids
}

type queryUpdate struct {
	cause       peer.ID
	heard       []peer.ID
	queried     []peer.ID
	unreachable []peer.ID
}

// query is a single iterative lookup. Workers never touch the peer set; they
// send updates which the goroutine in run applies one at a time.
type query struct {
	log *zap.Logger

	self       peer.ID
	target     keyspace.ID
	alpha      int
	beta       int
	bucketSize int

	queryFn  queryFn
	stopFn   stopFn
	observer peerObserver

	peers   *qpeerset.QueryPeerSet
	updates chan queryUpdate
	waiting sync.WaitGroup
}

func newQuery(log *zap.Logger, self peer.ID, target keyspace.ID, seeds []peer.ID, config Config, fn queryFn, stop stopFn, observer peerObserver) *query {
	q := &query{
		log:        log,
		self:       self,
		target:     target,
		alpha:      config.Alpha,
		beta:       config.Beta,
		bucketSize: config.BucketSize,
		queryFn:    fn,
		stopFn:     stop,
		observer:   observer,
		peers:      qpeerset.New(target),
		updates:    make(chan queryUpdate, config.Alpha),
	}
	for _, p := range seeds {
		if p != self {
			q.peers.TryAdd(p, "")
		}
	}
	return q
}

// run drives the lookup until it terminates. It fails only when there is
// no peer to start from.
func (q *query) run(ctx context.Context) (_ *LookupResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if q.peers.Len() == 0 {
		return nil, kbucket.ErrLookupFailure.New("no seed peers for %s", q.target)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer q.waiting.Wait()
	defer cancel()

	for {
		done, completed := q.isDone(ctx)
		if done {
			mon.IntVal("lookup_peers").Observe(int64(q.peers.Len()))
			return q.constructLookupResult(completed), nil
		}

		maxToSpawn := q.alpha - q.peers.NumWaiting()
		for _, p := range q.peers.GetClosestNInStates(maxToSpawn, qpeerset.PeerHeard) {
			if err := q.peers.SetState(p, qpeerset.PeerWaiting); err != nil {
				q.log.Error("cannot dispatch peer", zap.Error(err))
				continue
			}
			q.waiting.Add(1)
			go q.queryPeer(ctx, p)
		}

		select {
		case update := <-q.updates:
			q.apply(update)
		case <-ctx.Done():
		}
	}
}

// isDone evaluates the termination conditions in order of priority.
func (q *query) isDone(ctx context.Context) (done, completed bool) {
	if q.stopFn() {
		return true, false
	}
	if ctx.Err() != nil {
		return true, false
	}

	// starvation: nothing left to ask and nothing to wait for
	if q.peers.NumHeard() == 0 && q.peers.NumWaiting() == 0 {
		return true, true
	}

	// the beta closest peers have all responded
	closest := q.peers.GetClosestNInStates(q.beta, qpeerset.PeerHeard, qpeerset.PeerWaiting, qpeerset.PeerQueried)
	if len(closest) == 0 {
		return false, false
	}
	for _, p := range closest {
		if q.peers.GetState(p) != qpeerset.PeerQueried {
			return false, false
		}
	}
	return true, true
}

func (q *query) apply(update queryUpdate) {
	for _, p := range update.heard {
		if p == q.self {
			continue
		}
		q.peers.TryAdd(p, update.cause)
	}
	for _, p := range update.queried {
		if err := q.peers.SetState(p, qpeerset.PeerQueried); err != nil {
			q.log.Error("inconsistent lookup state", zap.Error(err))
		}
	}
	for _, p := range update.unreachable {
		if err := q.peers.SetState(p, qpeerset.PeerUnreachable); err != nil {
			q.log.Error("inconsistent lookup state", zap.Error(err))
		}
	}
}

func (q *query) queryPeer(ctx context.Context, p peer.ID) {
	defer q.waiting.Done()

	closer, err := q.queryFn(ctx, p)
	if err != nil {
		if !isDone(ctx) {
			q.log.Debug("querying peer failed",
				zap.Stringer("target", q.target),
				zap.Stringer("peer", p),
				zap.Error(err),
			)
			q.observer.peerFailed(p, err)
		}
		q.send(ctx, queryUpdate{cause: p, unreachable: []peer.ID{p}})
		return
	}

	q.observer.peerResponded(p)

	heard := make([]peer.ID, 0, len(closer))
	for _, info := range closer {
		if info.ID == q.self || info.ID == "" {
			continue
		}
		q.observer.peerHeard(info)
		heard = append(heard, info.ID)
	}
	q.send(ctx, queryUpdate{cause: p, heard: heard, queried: []peer.ID{p}})
}

func (q *query) send(ctx context.Context, update queryUpdate) {
	select {
	case q.updates <- update:
	case <-ctx.Done():
	}
}

func (q *query) constructLookupResult(completed bool) *LookupResult {
	peers := q.peers.GetClosestNInStates(q.bucketSize, qpeerset.PeerHeard, qpeerset.PeerWaiting, qpeerset.PeerQueried)
	res := &LookupResult{
		Peers:     peers,
		State:     make([]qpeerset.PeerState, len(peers)),
		Completed: completed,
	}
	for i, p := range peers {
		res.State[i] = q.peers.GetState(p)
	}
	return res
}

func isDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
