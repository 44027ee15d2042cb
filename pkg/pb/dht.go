// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package pb contains the messages exchanged between dht peers.
//
// The messages mirror dht.proto and are encoded by gogo/protobuf through
// their struct tags.
package pb

import (
	"fmt"

	proto "github.com/gogo/protobuf/proto"

	"storj.io/dht/pkg/peer"
)

// MessageType is the kind of a dht request.
type MessageType int32

// Message types.
const (
	Message_FIND_NODE     MessageType = 0
	Message_GET_PROVIDERS MessageType = 1
	Message_GET_VALUE     MessageType = 2
	Message_PUT_VALUE     MessageType = 3
	Message_ADD_PROVIDER  MessageType = 4
)

var messageTypeName = map[MessageType]string{
	Message_FIND_NODE:     "FIND_NODE",
	Message_GET_PROVIDERS: "GET_PROVIDERS",
	Message_GET_VALUE:     "GET_VALUE",
	Message_PUT_VALUE:     "PUT_VALUE",
	Message_ADD_PROVIDER:  "ADD_PROVIDER",
}

func (x MessageType) String() string {
	if name, ok := messageTypeName[x]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", int32(x))
}

// Message is both the request and the response of every dht rpc.
type Message struct {
	Type          MessageType `protobuf:"varint,1,opt,name=type,proto3,enum=dht.Message_MessageType" json:"type,omitempty"`
	Key           []byte      `protobuf:"bytes,2,opt,name=key,proto3" json:"key,omitempty"`
	Record        *Record     `protobuf:"bytes,3,opt,name=record,proto3" json:"record,omitempty"`
	CloserPeers   []*Peer     `protobuf:"bytes,4,rep,name=closer_peers,json=closerPeers,proto3" json:"closer_peers,omitempty"`
	ProviderPeers []*Peer     `protobuf:"bytes,5,rep,name=provider_peers,json=providerPeers,proto3" json:"provider_peers,omitempty"`
}

func (m *Message) Reset()         { *m = Message{} }
func (m *Message) String() string { return proto.CompactTextString(m) }
func (*Message) ProtoMessage()    {}

// Peer is a peer id with its addresses.
type Peer struct {
	Id    []byte   `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Addrs [][]byte `protobuf:"bytes,2,rep,name=addrs,proto3" json:"addrs,omitempty"`
}

func (m *Peer) Reset()         { *m = Peer{} }
func (m *Peer) String() string { return proto.CompactTextString(m) }
func (*Peer) ProtoMessage()    {}

// Record is a signed key value pair.
type Record struct {
	Key       []byte `protobuf:"bytes,1,opt,name=key,proto3" json:"key,omitempty"`
	Value     []byte `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
	PublicKey []byte `protobuf:"bytes,3,opt,name=public_key,json=publicKey,proto3" json:"public_key,omitempty"`
	Signature []byte `protobuf:"bytes,4,opt,name=signature,proto3" json:"signature,omitempty"`
	Sequence  uint64 `protobuf:"varint,5,opt,name=sequence,proto3" json:"sequence,omitempty"`
}

func (m *Record) Reset()         { *m = Record{} }
func (m *Record) String() string { return proto.CompactTextString(m) }
func (*Record) ProtoMessage()    {}

func init() {
	proto.RegisterEnum("dht.Message_MessageType", messageTypeName32(), messageTypeValue())
	proto.RegisterType((*Message)(nil), "dht.Message")
	proto.RegisterType((*Peer)(nil), "dht.Peer")
	proto.RegisterType((*Record)(nil), "dht.Record")
}

func messageTypeName32() map[int32]string {
	out := make(map[int32]string, len(messageTypeName))
	for k, v := range messageTypeName {
		out[int32(k)] = v
	}
	return out
}

func messageTypeValue() map[string]int32 {
	out := make(map[string]int32, len(messageTypeName))
	for k, v := range messageTypeName {
		out[v] = int32(k)
	}
	return out
}

// FromAddrInfo converts info into its wire form.
func FromAddrInfo(info peer.AddrInfo) *Peer {
	return &Peer{Id: info.ID.Bytes(), Addrs: info.AddrsBytes()}
}

// FromAddrInfos converts infos into their wire form.
func FromAddrInfos(infos []peer.AddrInfo) []*Peer {
	out := make([]*Peer, 0, len(infos))
	for _, info := range infos {
		out = append(out, FromAddrInfo(info))
	}
	return out
}

// AddrInfos converts wire peers. Peers with an invalid id are skipped.
func AddrInfos(peers []*Peer) []peer.AddrInfo {
	out := make([]peer.AddrInfo, 0, len(peers))
	for _, p := range peers {
		if p == nil {
			continue
		}
		info, err := peer.AddrInfoFromBytes(p.Id, p.Addrs)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out
}

// Marshal encodes m.
func Marshal(m proto.Message) ([]byte, error) { return proto.Marshal(m) }

// Unmarshal decodes data into m.
func Unmarshal(data []byte, m proto.Message) error { return proto.Unmarshal(data, m) }
