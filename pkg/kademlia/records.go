// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/dht/internal/errs2"
	"storj.io/dht/pkg/kbucket"
	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/record"
)

// PutValue signs value, stores it locally and sends it to the peers
// closest to key.
func (k *Kademlia) PutValue(ctx context.Context, key, value []byte) (err error) {
	defer mon.Task()(&ctx)(&err)

	existing, err := k.records.Get(ctx, key)
	if err != nil {
		return err
	}
	sequence := uint64(1)
	if existing != nil {
		sequence = existing.Sequence + 1
	}

	rec, err := record.Sign(k.privKey, key, value, sequence)
	if err != nil {
		return err
	}
	if err := record.ValidateFor(key, rec); err != nil {
		return err
	}
	if _, err := k.records.Put(ctx, rec); err != nil {
		return err
	}

	closest, err := k.GetClosestPeers(ctx, key)
	if err != nil {
		return err
	}

	req := &pb.Message{Type: pb.Message_PUT_VALUE, Key: key, Record: rec}
	var group errs2.Group
	for _, p := range closest {
		p := p
		group.Go(func() error {
			_, err := k.sendWithRetry(ctx, p, req)
			if err != nil {
				k.log.Debug("storing record failed", zap.Stringer("peer", p), zap.Error(err))
			}
			return err
		})
	}
	failed := group.Wait()

	k.log.Debug("put value",
		zap.ByteString("key", key),
		zap.Uint64("sequence", sequence),
		zap.Int("peers", len(closest)),
		zap.Int("failed", len(failed)),
	)
	return ctx.Err()
}

type peerRecord struct {
	from peer.ID
	rec  *pb.Record
}

// valueSearch collects the records returned during SearchValue.
type valueSearch struct {
	quorum int
	found  func(*pb.Record)

	mu         sync.Mutex
	best       *pb.Record
	responders *peerSet
	responses  []peerRecord
}

func newValueSearch(quorum int, found func(*pb.Record)) *valueSearch {
	return &valueSearch{
		quorum:     quorum,
		found:      found,
		responders: newPeerSet(0),
	}
}

// consider records the answer of from and reports rec to found when it is
// the best so far. Only the first answer of each peer is kept.
func (search *valueSearch) consider(from peer.ID, rec *pb.Record) {
	search.mu.Lock()
	defer search.mu.Unlock()

	if search.responders.TryAdd(from) {
		search.responses = append(search.responses, peerRecord{from: from, rec: rec})
	}
	if record.Better(rec, search.best) {
		search.best = rec
		search.found(rec)
	}
}

// enough reports whether quorum distinct peers answered.
func (search *valueSearch) enough() bool {
	return search.responders.Size() >= search.quorum
}

func (search *valueSearch) result() (*pb.Record, []peerRecord) {
	search.mu.Lock()
	defer search.mu.Unlock()
	return search.best, append([]peerRecord(nil), search.responses...)
}

// SearchValue searches for the record stored under key and calls found
// every time a better record is seen. The search ends once quorum distinct
// peers, the local store included, answered with a record. Peers that
// answered with an outdated record are sent the best one.
func (k *Kademlia) SearchValue(ctx context.Context, key []byte, quorum int, found func(*pb.Record)) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(key) == 0 {
		return Error.New("empty key")
	}
	if quorum <= 0 {
		quorum = k.config.Quorum
	}

	search := newValueSearch(quorum, found)

	local, err := k.records.Get(ctx, key)
	if err != nil {
		return err
	}
	if local != nil {
		search.consider(k.self.ID, local)
		if search.enough() {
			return nil
		}
	}

	lookupFn := func(ctx context.Context, p peer.ID) ([]peer.AddrInfo, error) {
		resp, err := k.send(ctx, p, &pb.Message{Type: pb.Message_GET_VALUE, Key: key})
		if err != nil {
			return nil, err
		}
		if resp.Record != nil {
			if err := record.ValidateFor(key, resp.Record); err != nil {
				k.log.Debug("discarding invalid record", zap.Stringer("peer", p), zap.Error(err))
			} else {
				search.consider(p, resp.Record)
			}
		}
		return pb.AddrInfos(resp.CloserPeers), nil
	}

	_, err = k.runLookupWithFollowup(ctx, keyspace.Key(key), lookupFn, search.enough)
	if err != nil && !(kbucket.ErrLookupFailure.Has(err) && local != nil) {
		return err
	}

	final, seen := search.result()
	if final != nil && ctx.Err() == nil {
		k.repair(ctx, final, seen)
	}
	return nil
}

// GetValue returns the best record stored under key.
func (k *Kademlia) GetValue(ctx context.Context, key []byte) (_ *pb.Record, err error) {
	defer mon.Task()(&ctx)(&err)

	var best *pb.Record
	err = k.SearchValue(ctx, key, k.config.Quorum, func(rec *pb.Record) { best = rec })
	if err != nil {
		return nil, err
	}
	if best == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound.New("record %q", key)
	}
	return best, nil
}

// repair sends best to every peer that answered with another record and
// stores it locally.
func (k *Kademlia) repair(ctx context.Context, best *pb.Record, seen []peerRecord) {
	if _, err := k.records.Put(ctx, best); err != nil {
		k.log.Debug("storing best record failed", zap.Error(err))
	}

	req := &pb.Message{Type: pb.Message_PUT_VALUE, Key: best.Key, Record: best}
	var group errgroup.Group
	for _, response := range seen {
		if response.from == k.self.ID || record.Equal(response.rec, best) {
			continue
		}
		p := response.from
		group.Go(func() error {
			if _, err := k.send(ctx, p, req); err != nil {
				k.log.Debug("repairing record failed", zap.Stringer("peer", p), zap.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()
}
