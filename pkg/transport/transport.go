// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package transport defines how a dht node talks to other peers.
package transport

import (
	"context"
	"errors"

	"github.com/zeebo/errs"

	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
)

var (
	// Error is the default transport error class.
	Error = errs.Class("transport error")
	// ErrProtocolUnsupported is returned when the remote peer does not speak
	// the dht protocol.
	ErrProtocolUnsupported = errs.Class("protocol not supported")
	// ErrConnection is returned when dialing or using a connection fails.
	ErrConnection = errs.Class("connection failure")
	// ErrTimeout is returned when a request exceeds its deadline.
	ErrTimeout = errs.Class("request timeout")
)

// Conn is an open connection to a remote peer.
type Conn interface {
	// RemotePeer returns the peer on the other side.
	RemotePeer() peer.ID
	// Send sends req and waits for the response.
	Send(ctx context.Context, req *pb.Message) (*pb.Message, error)
	Close() error
}

// Network connects the local peer to remote peers.
type Network interface {
	// Self returns the local peer and its addresses.
	Self() peer.AddrInfo
	// Dial opens a connection to info.
	Dial(ctx context.Context, info peer.AddrInfo) (Conn, error)
	// Connected returns whether there is a live connection to id.
	Connected(id peer.ID) bool
	// ConnectedPeers returns every peer with a live connection.
	ConnectedPeers() []peer.AddrInfo
}

// Handler answers requests from remote peers.
type Handler interface {
	HandleMessage(ctx context.Context, from peer.AddrInfo, req *pb.Message) (*pb.Message, error)
}

// HandlerFunc adapts a function into a Handler.
type HandlerFunc func(ctx context.Context, from peer.AddrInfo, req *pb.Message) (*pb.Message, error)

// HandleMessage implements Handler.
func (fn HandlerFunc) HandleMessage(ctx context.Context, from peer.AddrInfo, req *pb.Message) (*pb.Message, error) {
	return fn(ctx, from, req)
}

// Kind names the class of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case ErrProtocolUnsupported.Has(err):
		return "protocol-unsupported"
	case ErrConnection.Has(err):
		return "connection"
	case ErrTimeout.Has(err):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
