// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package peerstore_test

import (
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/dht/internal/testrand"
	"storj.io/dht/pkg/peerstore"
)

func TestAddrBook(t *testing.T) {
	book := peerstore.New(time.Hour)
	id := testrand.PeerID()

	a, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/1000")
	require.NoError(t, err)
	b, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/2000")
	require.NoError(t, err)

	assert.Empty(t, book.Addrs(id))

	book.AddAddrs(id, []ma.Multiaddr{a})
	book.AddAddrs(id, []ma.Multiaddr{a, b})
	book.AddAddrs(id, nil)

	addrs := book.Addrs(id)
	require.Len(t, addrs, 2)
	assert.True(t, addrs[0].Equal(a))
	assert.True(t, addrs[1].Equal(b))

	info := book.AddrInfo(id)
	assert.Equal(t, id, info.ID)
	assert.Len(t, info.Addrs, 2)
	assert.Equal(t, 1, len(book.Peers()))

	book.ClearAddrs(id)
	assert.Empty(t, book.Addrs(id))
}

func TestAddrBook_Expiration(t *testing.T) {
	book := peerstore.New(20 * time.Millisecond)
	id := testrand.PeerID()

	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/1000")
	require.NoError(t, err)
	book.AddAddrs(id, []ma.Multiaddr{addr})
	assert.Len(t, book.Addrs(id), 1)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, book.Addrs(id))
}
