// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package simnet implements an in-memory network of dht peers.
//
// Every request and response is encoded and decoded as it would be on the
// wire. Peers can be made to fail in the ways a real network fails.
package simnet

import (
	"context"
	"sort"
	"sync"
	"time"

	proto "github.com/gogo/protobuf/proto"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/transport"
)

var mon = monkit.Package()

// Failure is a fault injected for a peer.
type Failure int

const (
	// Healthy peers answer requests.
	Healthy Failure = iota
	// Offline peers cannot be dialed and drop open connections.
	Offline
	// ProtocolUnsupported peers are reachable but do not speak the dht protocol.
	ProtocolUnsupported
	// Unresponsive peers accept requests and never answer.
	Unresponsive
)

// Network is a registry of simulated peers.
type Network struct {
	log *zap.Logger

	mu      sync.Mutex
	nodes   map[peer.ID]*node
	latency time.Duration
}

type node struct {
	info     peer.AddrInfo
	handler  transport.Handler
	failure  Failure
	conns    map[peer.ID]struct{}
	requests map[pb.MessageType]int
}

// New returns an empty network.
func New(log *zap.Logger) *Network {
	return &Network{
		log:   log,
		nodes: make(map[peer.ID]*node),
	}
}

// SetLatency delays every request by latency.
func (net *Network) SetLatency(latency time.Duration) {
	net.mu.Lock()
	defer net.mu.Unlock()
	net.latency = latency
}

// Add registers info on the network and returns its endpoint. The handler
// may be set later with Endpoint.SetHandler.
func (net *Network) Add(info peer.AddrInfo, handler transport.Handler) (*Endpoint, error) {
	if err := info.ID.Validate(); err != nil {
		return nil, transport.Error.Wrap(err)
	}

	net.mu.Lock()
	defer net.mu.Unlock()

	if _, exists := net.nodes[info.ID]; exists {
		return nil, transport.Error.New("peer %s already on network", info.ID.ShortString())
	}
	net.nodes[info.ID] = &node{
		info:     info,
		handler:  handler,
		conns:    make(map[peer.ID]struct{}),
		requests: make(map[pb.MessageType]int),
	}
	return &Endpoint{net: net, self: info}, nil
}

// Remove takes id off the network.
func (net *Network) Remove(id peer.ID) {
	net.mu.Lock()
	defer net.mu.Unlock()

	delete(net.nodes, id)
	for _, n := range net.nodes {
		delete(n.conns, id)
	}
}

// SetFailure injects failure for id.
func (net *Network) SetFailure(id peer.ID, failure Failure) {
	net.mu.Lock()
	defer net.mu.Unlock()

	if n, ok := net.nodes[id]; ok {
		n.failure = failure
	}
}

// Requests returns how many requests of the given types id received. With
// no types all requests are counted.
func (net *Network) Requests(id peer.ID, types ...pb.MessageType) int {
	net.mu.Lock()
	defer net.mu.Unlock()

	n, ok := net.nodes[id]
	if !ok {
		return 0
	}
	total := 0
	for typ, count := range n.requests {
		if len(types) == 0 {
			total += count
			continue
		}
		for _, want := range types {
			if typ == want {
				total += count
			}
		}
	}
	return total
}

// ResetRequests clears all request counters.
func (net *Network) ResetRequests() {
	net.mu.Lock()
	defer net.mu.Unlock()

	for _, n := range net.nodes {
		n.requests = make(map[pb.MessageType]int)
	}
}

// Peers returns every peer on the network.
func (net *Network) Peers() []peer.AddrInfo {
	net.mu.Lock()
	defer net.mu.Unlock()

	infos := make([]peer.AddrInfo, 0, len(net.nodes))
	for _, n := range net.nodes {
		infos = append(infos, n.info)
	}
	sort.Slice(infos, func(i, k int) bool { return infos[i].ID < infos[k].ID })
	return infos
}

// Endpoint is the view of the network from a single peer.
type Endpoint struct {
	net  *Network
	self peer.AddrInfo
}

var _ transport.Network = (*Endpoint)(nil)

// Self implements transport.Network.
func (ep *Endpoint) Self() peer.AddrInfo { return ep.self }

// SetHandler sets the handler answering requests sent to this endpoint.
func (ep *Endpoint) SetHandler(handler transport.Handler) {
	ep.net.mu.Lock()
	defer ep.net.mu.Unlock()

	if n, ok := ep.net.nodes[ep.self.ID]; ok {
		n.handler = handler
	}
}

// Dial implements transport.Network.
func (ep *Endpoint) Dial(ctx context.Context, info peer.AddrInfo) (_ transport.Conn, err error) {
	defer mon.Task()(&ctx)(&err)

	if info.ID == ep.self.ID {
		return nil, transport.ErrConnection.New("dial to self")
	}

	net := ep.net
	net.mu.Lock()
	defer net.mu.Unlock()

	from, ok := net.nodes[ep.self.ID]
	if !ok {
		return nil, transport.ErrConnection.New("%s left the network", ep.self.ID.ShortString())
	}
	to, ok := net.nodes[info.ID]
	if !ok || to.failure == Offline {
		return nil, transport.ErrConnection.New("no route to %s", info.ID.ShortString())
	}

	from.conns[info.ID] = struct{}{}
	to.conns[ep.self.ID] = struct{}{}
	return &conn{ep: ep, remote: info.ID}, nil
}

// Connected implements transport.Network.
func (ep *Endpoint) Connected(id peer.ID) bool {
	net := ep.net
	net.mu.Lock()
	defer net.mu.Unlock()

	from, ok := net.nodes[ep.self.ID]
	if !ok {
		return false
	}
	if _, ok := from.conns[id]; !ok {
		return false
	}
	to, ok := net.nodes[id]
	return ok && to.failure != Offline
}

// ConnectedPeers implements transport.Network.
func (ep *Endpoint) ConnectedPeers() []peer.AddrInfo {
	net := ep.net
	net.mu.Lock()
	defer net.mu.Unlock()

	from, ok := net.nodes[ep.self.ID]
	if !ok {
		return nil
	}

	var infos []peer.AddrInfo
	for id := range from.conns {
		if to, ok := net.nodes[id]; ok && to.failure != Offline {
			infos = append(infos, to.info)
		}
	}
	sort.Slice(infos, func(i, k int) bool { return infos[i].ID < infos[k].ID })
	return infos
}

// Disconnect closes the connection to id.
func (ep *Endpoint) Disconnect(id peer.ID) {
	net := ep.net
	net.mu.Lock()
	defer net.mu.Unlock()

	if from, ok := net.nodes[ep.self.ID]; ok {
		delete(from.conns, id)
	}
	if to, ok := net.nodes[id]; ok {
		delete(to.conns, ep.self.ID)
	}
}

type conn struct {
	ep     *Endpoint
	remote peer.ID
}

func (c *conn) RemotePeer() peer.ID { return c.remote }

func (c *conn) Close() error { return nil }

func (c *conn) Send(ctx context.Context, req *pb.Message) (_ *pb.Message, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := proto.Marshal(req)
	if err != nil {
		return nil, transport.Error.Wrap(err)
	}

	net := c.ep.net
	net.mu.Lock()
	to, ok := net.nodes[c.remote]
	var (
		failure Failure
		handler transport.Handler
		latency = net.latency
	)
	if ok {
		failure = to.failure
		handler = to.handler
		to.requests[req.Type]++
	}
	net.mu.Unlock()

	switch {
	case !ok || failure == Offline:
		c.ep.Disconnect(c.remote)
		return nil, transport.ErrConnection.New("connection to %s reset", c.remote.ShortString())
	case failure == ProtocolUnsupported || handler == nil:
		return nil, transport.ErrProtocolUnsupported.New("%s", c.remote.ShortString())
	case failure == Unresponsive:
		<-ctx.Done()
		return nil, contextError(ctx)
	}

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, contextError(ctx)
		}
	}

	decoded := &pb.Message{}
	if err := proto.Unmarshal(data, decoded); err != nil {
		return nil, transport.Error.Wrap(err)
	}

	resp, err := handler.HandleMessage(ctx, c.ep.self, decoded)
	if err != nil {
		net.log.Debug("remote handler failed",
			zap.Stringer("from", c.ep.self.ID),
			zap.Stringer("to", c.remote),
			zap.Stringer("type", req.Type),
			zap.Error(err))
		return nil, transport.Error.Wrap(err)
	}
	if resp == nil {
		resp = &pb.Message{Type: req.Type, Key: req.Key}
	}

	data, err = proto.Marshal(resp)
	if err != nil {
		return nil, transport.Error.Wrap(err)
	}
	out := &pb.Message{}
	if err := proto.Unmarshal(data, out); err != nil {
		return nil, transport.Error.Wrap(err)
	}
	return out, nil
}

func contextError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return transport.ErrTimeout.Wrap(ctx.Err())
	}
	return ctx.Err()
}
