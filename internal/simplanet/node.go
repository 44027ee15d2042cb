// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information

package simplanet

import (
	"crypto/rand"
	"fmt"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"golang.org/x/crypto/ed25519"

	"storj.io/dht/pkg/kademlia"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/transport/simnet"
	"storj.io/dht/storage"
	"storj.io/dht/storage/storelogger"
)

// Node is a single dht node of the planet.
type Node struct {
	Name       string
	Log        *zap.Logger
	PrivateKey ed25519.PrivateKey
	Endpoint   *simnet.Endpoint
	Kademlia   *kademlia.Kademlia
	Inspector  *kademlia.Inspector
	Store      storage.KeyValueStore

	close sync.Once
	err   error
}

// ID returns the peer id of the node.
func (node *Node) ID() peer.ID { return node.Endpoint.Self().ID }

// Info returns the peer id and addresses of the node.
func (node *Node) Info() peer.AddrInfo { return node.Endpoint.Self() }

// Close closes the node.
func (node *Node) Close() error {
	node.close.Do(func() {
		node.err = node.Kademlia.Close()
	})
	return node.err
}

func (planet *Planet) newNode(index int) (*Node, error) {
	name := fmt.Sprintf("node%d", index)
	log := planet.log.Named(name)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	id, err := peer.IDFromBytes(pub)
	if err != nil {
		return nil, err
	}
	addr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/10.0.%d.%d/tcp/4001", index/250, index%250+1))
	if err != nil {
		return nil, err
	}
	info := peer.AddrInfo{ID: id, Addrs: []ma.Multiaddr{addr}}

	endpoint, err := planet.Network.Add(info, nil)
	if err != nil {
		return nil, err
	}

	db, err := planet.config.NewStore(index)
	if err != nil {
		return nil, err
	}
	store := storelogger.New(log.Named("store"), db)

	config := planet.config.Kademlia
	if index > 0 {
		first := planet.Nodes[0].Info()
		config.BootstrapPeers = []string{first.ID.String() + "@" + first.Addrs[0].String()}
	}
	if planet.config.Reconfigure != nil {
		planet.config.Reconfigure(index, &config)
	}

	kad, err := kademlia.NewService(log, endpoint, priv, store, config)
	if err != nil {
		return nil, err
	}
	endpoint.SetHandler(kad)

	node := &Node{
		Name:       name,
		Log:        log,
		PrivateKey: priv,
		Endpoint:   endpoint,
		Kademlia:   kad,
		Inspector:  kademlia.NewInspector(kad),
		Store:      store,
	}
	log.Debug("id=" + id.String())
	return node, nil
}
