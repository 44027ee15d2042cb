// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package peer_test

import (
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/dht/internal/testrand"
	"storj.io/dht/pkg/keyspace"
	"storj.io/dht/pkg/peer"
)

func TestID_Encoding(t *testing.T) {
	id := testrand.PeerID()

	decoded, err := peer.Decode(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
	assert.Equal(t, keyspace.Key(id.Bytes()), id.Key())

	_, err = peer.Decode("0OIl")
	require.Error(t, err)
	assert.True(t, peer.Error.Has(err))

	_, err = peer.IDFromBytes(nil)
	require.Error(t, err)
	require.Error(t, peer.ID("").Validate())
}

func TestAddrInfo_Bytes(t *testing.T) {
	info := peer.AddrInfo{
		ID: testrand.PeerID(),
		Addrs: []ma.Multiaddr{
			ma.StringCast("/ip4/127.0.0.1/tcp/7777"),
			ma.StringCast("/ip4/10.0.0.1/udp/4001/quic-v1"),
		},
	}

	raw := info.AddrsBytes()
	// malformed addresses are dropped
	raw = append(raw, []byte{0xff, 0xff})

	decoded, err := peer.AddrInfoFromBytes(info.ID.Bytes(), raw)
	require.NoError(t, err)
	require.Equal(t, info.ID, decoded.ID)
	require.Len(t, decoded.Addrs, 2)
	for i := range info.Addrs {
		assert.True(t, info.Addrs[i].Equal(decoded.Addrs[i]))
	}
}
