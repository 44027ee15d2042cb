// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package simnet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/dht/internal/testcontext"
	"storj.io/dht/internal/testrand"
	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/transport"
	"storj.io/dht/pkg/transport/simnet"
)

func echo(ctx context.Context, from peer.AddrInfo, req *pb.Message) (*pb.Message, error) {
	return &pb.Message{
		Type:        req.Type,
		Key:         req.Key,
		CloserPeers: []*pb.Peer{pb.FromAddrInfo(from)},
	}, nil
}

func TestNetwork(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	network := simnet.New(zaptest.NewLogger(t))
	a, err := network.Add(peer.AddrInfo{ID: testrand.PeerID()}, nil)
	require.NoError(t, err)
	b, err := network.Add(peer.AddrInfo{ID: testrand.PeerID()}, transport.HandlerFunc(echo))
	require.NoError(t, err)

	_, err = network.Add(b.Self(), nil)
	assert.Error(t, err)

	assert.False(t, a.Connected(b.Self().ID))

	conn, err := a.Dial(ctx, b.Self())
	require.NoError(t, err)
	defer ctx.Check(conn.Close)
	assert.Equal(t, b.Self().ID, conn.RemotePeer())

	assert.True(t, a.Connected(b.Self().ID))
	assert.True(t, b.Connected(a.Self().ID))
	assert.Equal(t, []peer.AddrInfo{b.Self()}, a.ConnectedPeers())

	resp, err := conn.Send(ctx, &pb.Message{Type: pb.Message_FIND_NODE, Key: []byte("key")})
	require.NoError(t, err)
	assert.Equal(t, []byte("key"), resp.Key)
	require.Len(t, resp.CloserPeers, 1)
	assert.Equal(t, a.Self().ID.Bytes(), resp.CloserPeers[0].Id)
	assert.Equal(t, 1, network.Requests(b.Self().ID))
	assert.Equal(t, 1, network.Requests(b.Self().ID, pb.Message_FIND_NODE))
	assert.Equal(t, 0, network.Requests(b.Self().ID, pb.Message_GET_VALUE))

	// a has no handler
	back, err := b.Dial(ctx, a.Self())
	require.NoError(t, err)
	_, err = back.Send(ctx, &pb.Message{})
	assert.True(t, transport.ErrProtocolUnsupported.Has(err))

	_, err = a.Dial(ctx, a.Self())
	assert.True(t, transport.ErrConnection.Has(err))

	network.ResetRequests()
	assert.Equal(t, 0, network.Requests(b.Self().ID))
	assert.Len(t, network.Peers(), 2)
}

func TestNetwork_Failures(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	network := simnet.New(zaptest.NewLogger(t))
	a, err := network.Add(peer.AddrInfo{ID: testrand.PeerID()}, transport.HandlerFunc(echo))
	require.NoError(t, err)
	b, err := network.Add(peer.AddrInfo{ID: testrand.PeerID()}, transport.HandlerFunc(echo))
	require.NoError(t, err)

	conn, err := a.Dial(ctx, b.Self())
	require.NoError(t, err)

	network.SetFailure(b.Self().ID, simnet.ProtocolUnsupported)
	_, err = conn.Send(ctx, &pb.Message{})
	assert.True(t, transport.ErrProtocolUnsupported.Has(err))

	network.SetFailure(b.Self().ID, simnet.Unresponsive)
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	_, err = conn.Send(timeoutCtx, &pb.Message{})
	cancel()
	assert.True(t, transport.ErrTimeout.Has(err))

	network.SetFailure(b.Self().ID, simnet.Offline)
	assert.False(t, a.Connected(b.Self().ID))
	_, err = conn.Send(ctx, &pb.Message{})
	assert.True(t, transport.ErrConnection.Has(err))
	_, err = a.Dial(ctx, b.Self())
	assert.True(t, transport.ErrConnection.Has(err))

	network.SetFailure(b.Self().ID, simnet.Healthy)
	assert.False(t, a.Connected(b.Self().ID), "offline peer dropped the connection")

	network.Remove(b.Self().ID)
	_, err = a.Dial(ctx, b.Self())
	assert.True(t, transport.ErrConnection.Has(err))
}

func TestNetwork_Latency(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	network := simnet.New(zaptest.NewLogger(t))
	network.SetLatency(time.Second)

	a, err := network.Add(peer.AddrInfo{ID: testrand.PeerID()}, nil)
	require.NoError(t, err)
	b, err := network.Add(peer.AddrInfo{ID: testrand.PeerID()}, transport.HandlerFunc(echo))
	require.NoError(t, err)

	conn, err := a.Dial(ctx, b.Self())
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = conn.Send(canceled, &pb.Message{})
	assert.Equal(t, context.Canceled, err)
}
