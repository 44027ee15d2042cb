// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/transport"
)

// Pool keeps a bounded set of recently used connections and limits the
// number of concurrent requests.
type Pool struct {
	log     *zap.Logger
	network transport.Network
	size    int
	timeout time.Duration

	limit  *semaphore.Weighted
	mu     sync.Mutex
	closed bool
	recent []*poolConn
}

type poolConn struct {
	refcount int32 // only modify when holding pool.mu
	dropped  bool  // only modify when holding pool.mu

	id   peer.ID
	conn transport.Conn
}

// NewPool creates a pool of at most size idle connections that runs at most
// maxRequests requests at a time.
func NewPool(log *zap.Logger, network transport.Network, size, maxRequests int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	if maxRequests <= 0 {
		maxRequests = 1
	}
	return &Pool{
		log:     log,
		network: network,
		size:    size,
		timeout: timeout,
		limit:   semaphore.NewWeighted(int64(maxRequests)),
	}
}

// Close closes every pooled connection and prevents new ones.
func (pool *Pool) Close() error {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	pool.closed = true

	// hide all connections to prevent new connections
	recent := pool.recent
	pool.recent = nil

	var group errs.Group
	for _, conn := range recent {
		conn.dropped = true
		if conn.refcount == 0 {
			group.Add(conn.conn.Close())
		}
	}
	return group.Err()
}

// Len returns the number of pooled connections.
func (pool *Pool) Len() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return len(pool.recent)
}

// Connect makes sure there is a pooled connection to the peer.
func (pool *Pool) Connect(ctx context.Context, to peer.AddrInfo) (err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := pool.connect(ctx, to)
	if err != nil {
		return err
	}
	pool.release(conn)
	return nil
}

// Send sends req to the peer and returns its response. A connection that
// fails is dropped from the pool.
func (pool *Pool) Send(ctx context.Context, to peer.AddrInfo, req *pb.Message) (_ *pb.Message, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := pool.limit.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer pool.limit.Release(1)

	conn, err := pool.connect(ctx, to)
	if err != nil {
		return nil, err
	}
	defer pool.release(conn)

	resp, err := conn.conn.Send(ctx, req)
	if err != nil {
		pool.drop(conn)
		return nil, err
	}
	return resp, nil
}

func (pool *Pool) connect(ctx context.Context, to peer.AddrInfo) (*poolConn, error) {
	if conn, err := pool.find(to.ID); conn != nil || err != nil {
		return conn, err
	}

	raw, err := pool.network.Dial(ctx, to)
	if err != nil {
		return nil, err
	}
	fresh := &poolConn{
		refcount: 1,
		id:       to.ID,
		conn:     transport.WithTimeout(raw, pool.timeout),
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pool.closed {
		return nil, errs.Combine(context.Canceled, raw.Close())
	}

	// someone else may have dialed the same peer meanwhile
	for _, conn := range pool.recent {
		if conn.id == to.ID {
			conn.refcount++
			if err := raw.Close(); err != nil {
				pool.log.Debug("closing duplicate connection failed", zap.Error(err))
			}
			return conn, nil
		}
	}

	pool.recent = append(pool.recent, fresh)
	pool.forceSize()
	return fresh, nil
}

func (pool *Pool) find(id peer.ID) (*poolConn, error) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pool.closed {
		return nil, context.Canceled
	}

	for i, conn := range pool.recent {
		if conn.id == id {
			conn.refcount++
			// move towards the front, frequently used connections stay
			k := i / 2
			pool.recent[k], pool.recent[i] = pool.recent[i], pool.recent[k]
			return conn, nil
		}
	}
	return nil, nil
}

// forceSize evicts the least recently used connections above size.
func (pool *Pool) forceSize() {
	for len(pool.recent) > pool.size {
		n := len(pool.recent)
		conn := pool.recent[n-1]
		pool.recent[n-1] = nil
		pool.recent = pool.recent[:n-1]
		pool.closeLocked(conn)
	}
}

func (pool *Pool) drop(conn *poolConn) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	for i, c := range pool.recent {
		if c == conn {
			pool.recent = append(pool.recent[:i], pool.recent[i+1:]...)
			break
		}
	}
	conn.dropped = true
}

func (pool *Pool) release(conn *poolConn) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	conn.refcount--
	if conn.dropped && conn.refcount == 0 {
		if err := conn.conn.Close(); err != nil {
			pool.log.Debug("closing connection failed", zap.Stringer("peer", conn.id), zap.Error(err))
		}
	}
}

func (pool *Pool) closeLocked(conn *poolConn) {
	conn.dropped = true
	if conn.refcount == 0 {
		if err := conn.conn.Close(); err != nil {
			pool.log.Debug("closing connection failed", zap.Stringer("peer", conn.id), zap.Error(err))
		}
	}
}
