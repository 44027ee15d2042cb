// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package peer defines peer identifiers and their addresses.
package peer

import (
	"github.com/mr-tron/base58"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/zeebo/errs"

	"storj.io/dht/pkg/keyspace"
)

// Error is the class for peer identifier errors.
var Error = errs.Class("peer error")

// ID is an opaque peer identifier.
type ID string

// IDFromBytes converts raw bytes into an ID.
func IDFromBytes(data []byte) (ID, error) {
	if len(data) == 0 {
		return "", Error.New("empty peer id")
	}
	return ID(data), nil
}

// Decode parses the base58 representation of an ID.
func Decode(s string) (ID, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return IDFromBytes(data)
}

// String returns the base58 representation of id.
func (id ID) String() string { return base58.Encode([]byte(id)) }

// ShortString returns an abbreviated id for logging.
func (id ID) ShortString() string {
	s := id.String()
	if len(s) <= 10 {
		return s
	}
	return s[:4] + "*" + s[len(s)-6:]
}

// Bytes returns the raw bytes of id.
func (id ID) Bytes() []byte { return []byte(id) }

// Key returns the position of id in the keyspace.
func (id ID) Key() keyspace.ID { return keyspace.Key([]byte(id)) }

// Validate checks that id is usable.
func (id ID) Validate() error {
	if id == "" {
		return Error.New("empty peer id")
	}
	return nil
}

// AddrInfo is a peer id with the addresses it can be reached at.
type AddrInfo struct {
	ID    ID
	Addrs []ma.Multiaddr
}

// String implements fmt.Stringer.
func (info AddrInfo) String() string {
	s := info.ID.ShortString() + "{"
	for i, addr := range info.Addrs {
		if i > 0 {
			s += " "
		}
		s += addr.String()
	}
	return s + "}"
}

// AddrInfoFromBytes converts wire representation into an AddrInfo.
// Malformed addresses are dropped.
func AddrInfoFromBytes(id []byte, addrs [][]byte) (AddrInfo, error) {
	pid, err := IDFromBytes(id)
	if err != nil {
		return AddrInfo{}, err
	}
	info := AddrInfo{ID: pid}
	for _, raw := range addrs {
		addr, err := ma.NewMultiaddrBytes(raw)
		if err != nil {
			continue
		}
		info.Addrs = append(info.Addrs, addr)
	}
	return info, nil
}

// AddrsBytes returns the binary encoding of the addresses in info.
func (info AddrInfo) AddrsBytes() [][]byte {
	out := make([][]byte, 0, len(info.Addrs))
	for _, addr := range info.Addrs {
		out = append(out, addr.Bytes())
	}
	return out
}

// IDs returns the ids of infos.
func IDs(infos []AddrInfo) []ID {
	ids := make([]ID, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
	}
	return ids
}
