// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package kademlia implements a Kademlia distributed hash table node:
// iterative lookups, peer routing, content provider records and signed
// value records.
package kademlia

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/crypto/ed25519"

	"storj.io/dht/internal/sync2"
	"storj.io/dht/pkg/kbucket"
	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/peerstore"
	"storj.io/dht/pkg/providers"
	"storj.io/dht/pkg/record"
	"storj.io/dht/pkg/transport"
	"storj.io/dht/storage"
)

// defaultRetries is how many times an announcement is retried after a timeout.
const defaultRetries = 3

// Kademlia is a single dht node.
//
// The routing table is shared between lookups, the request handler and the
// refresh loop. It is guarded by its own lock, so every access observes the
// table as if it was owned by a single goroutine.
type Kademlia struct {
	log     *zap.Logger
	config  Config
	self    peer.AddrInfo
	privKey ed25519.PrivateKey

	network      transport.Network
	pool         *Pool
	routingTable *kbucket.RoutingTable
	addrs        *peerstore.AddrBook
	providers    *providers.Manager
	records      *record.Store

	bootstrapPeers []peer.AddrInfo
	lookups        sync2.WorkGroup
	refresh        *sync2.Cycle

	bootstrapFinished sync2.Fence

	closeOnce sync.Once
	closed    chan struct{}
}

// NewService returns a newly configured Kademlia instance. Records are
// signed with privKey and kept in db.
func NewService(log *zap.Logger, network transport.Network, privKey ed25519.PrivateKey, db storage.KeyValueStore, config Config) (*Kademlia, error) {
	if err := config.Verify(); err != nil {
		return nil, err
	}
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, Error.New("invalid private key size %d", len(privKey))
	}

	bootstrapPeers, err := ParseBootstrapPeers(config.BootstrapPeers)
	if err != nil {
		return nil, err
	}

	self := network.Self()
	rt, err := kbucket.NewRoutingTable(log.Named("routing"), self.ID, config.BucketSize, config.ReplacementCacheSize)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	k := &Kademlia{
		log:     log,
		config:  config,
		self:    self,
		privKey: privKey,

		network:      network,
		pool:         NewPool(log.Named("pool"), network, config.PoolSize, config.MaxRequests, config.RequestTimeout),
		routingTable: rt,
		addrs:        peerstore.New(config.AddrTTL),
		providers:    providers.NewManager(config.ProvideValidity),
		records:      record.NewStore(log.Named("records"), db),

		bootstrapPeers: bootstrapPeers,
		refresh:        sync2.NewCycle(config.RefreshInterval),

		closed: make(chan struct{}),
	}
	return k, nil
}

// Close closes all kademlia connections and prevents new ones from being created.
func (k *Kademlia) Close() error {
	k.closeOnce.Do(func() { close(k.closed) })
	k.refresh.Stop()
	k.lookups.Close()
	k.lookups.Wait()
	return errs.Combine(k.pool.Close(), k.records.Close())
}

// Self returns the local peer.
func (k *Kademlia) Self() peer.AddrInfo { return k.self }

// Config returns the configuration the node was created with.
func (k *Kademlia) Config() Config { return k.config }

// RoutingTable returns the routing table of the node.
func (k *Kademlia) RoutingTable() *kbucket.RoutingTable { return k.routingTable }

// SetBootstrapPeers sets the bootstrap peers.
// Must be called before anything starting to use kademlia.
func (k *Kademlia) SetBootstrapPeers(peers []peer.AddrInfo) { k.bootstrapPeers = peers }

// GetBootstrapPeers gets the bootstrap peers.
func (k *Kademlia) GetBootstrapPeers() []peer.AddrInfo { return k.bootstrapPeers }

// peerInfo returns p together with the addresses we know for it.
func (k *Kademlia) peerInfo(p peer.ID) peer.AddrInfo {
	if p == k.self.ID {
		return k.self
	}
	return k.addrs.AddrInfo(p)
}

// send sends a single request to p.
func (k *Kademlia) send(ctx context.Context, p peer.ID, req *pb.Message) (*pb.Message, error) {
	return k.pool.Send(ctx, k.peerInfo(p), req)
}

// sendWithRetry sends req to p and retries when the request timed out.
// Other failures are returned immediately.
func (k *Kademlia) sendWithRetry(ctx context.Context, p peer.ID, req *pb.Message) (*pb.Message, error) {
	var resp *pb.Message
	err := retry(ctx, defaultRetries, func() error {
		var err error
		resp, err = k.send(ctx, p, req)
		if err != nil && !transport.ErrTimeout.Has(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	return resp, err
}

func retry(ctx context.Context, retries int, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	var b backoff.BackOff = policy
	if retries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(retries))
	}
	return backoff.Retry(fn, backoff.WithContext(b, ctx))
}

// findNodeFn asks a peer for the peers closest to key.
func (k *Kademlia) findNodeFn(key []byte) queryFn {
	return func(ctx context.Context, p peer.ID) ([]peer.AddrInfo, error) {
		resp, err := k.send(ctx, p, &pb.Message{Type: pb.Message_FIND_NODE, Key: key})
		if err != nil {
			return nil, err
		}
		return pb.AddrInfos(resp.CloserPeers), nil
	}
}

// peerResponded implements peerObserver.
func (k *Kademlia) peerResponded(p peer.ID) {
	if _, err := k.routingTable.TryAddPeer(p, true, true); err != nil {
		k.log.Debug("peer not added to routing table", zap.Stringer("peer", p), zap.Error(err))
	}
	k.routingTable.UpdateLastSuccessfulOutboundQueryAt(p, time.Now())
}

// peerFailed implements peerObserver. Only peers that could not be reached
// at all are evicted from the routing table.
func (k *Kademlia) peerFailed(p peer.ID, err error) {
	kind := transport.Kind(err)
	k.log.Debug("peer failed", zap.Stringer("peer", p), zap.String("kind", kind))
	mon.Counter("peer_failed_" + kind).Inc(1)

	if transport.ErrConnection.Has(err) {
		if k.routingTable.RemovePeer(p) {
			k.log.Debug("removed unreachable peer", zap.Stringer("peer", p))
		}
	}
}

// peerHeard implements peerObserver.
func (k *Kademlia) peerHeard(info peer.AddrInfo) {
	k.addrs.AddAddrs(info.ID, info.Addrs)
}
