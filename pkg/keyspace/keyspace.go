// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package keyspace maps peer identifiers and content keys into a single
// 256-bit identifier space and defines the XOR metric over it.
package keyspace

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"math/bits"
	"math/rand"

	"github.com/minio/sha256-simd"
)

// Len is the length of an ID in bytes.
const Len = sha256.Size

// Bits is the length of an ID in bits.
const Bits = Len * 8

// ID is a position in the keyspace.
type ID [Len]byte

// Key hashes arbitrary data into the keyspace.
func Key(data []byte) ID {
	return ID(sha256.Sum256(data))
}

// Bytes returns a copy of the raw bytes of id.
func (id ID) Bytes() []byte { return append([]byte(nil), id[:]...) }

// String returns the hex representation of id.
func (id ID) String() string { return hex.EncodeToString(id[:]) }

// IsZero returns whether id is the zero value.
func (id ID) IsZero() bool { return id == ID{} }

// Less returns whether id sorts before other, byte by byte.
func (id ID) Less(other ID) bool { return bytes.Compare(id[:], other[:]) < 0 }

// BitAt returns the bit at index i, counting from the most significant bit.
func (id ID) BitAt(i int) byte {
	return (id[i/8] >> uint(7-i%8)) & 1
}

// Xor returns the bitwise xor of a and b.
func Xor(a, b ID) ID {
	var r ID
	for i := range a {
		r[i] = a[i] ^ b[i]
	}
	return r
}

// Distance returns the xor distance between a and b as an unsigned integer.
func Distance(a, b ID) *big.Int {
	x := Xor(a, b)
	return new(big.Int).SetBytes(x[:])
}

// Compare compares a and b by their xor distance to target.
// It returns -1 when a is closer, 1 when b is closer and 0 when they are equal.
func Compare(a, b, target ID) int {
	for i, t := range target {
		da, db := a[i]^t, b[i]^t
		if da != db {
			if da < db {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Closer returns whether a is strictly closer to target than b.
func Closer(a, b, target ID) bool {
	return Compare(a, b, target) < 0
}

// CommonPrefixLen returns the number of leading bits a and b share.
func CommonPrefixLen(a, b ID) int {
	for i := range a {
		if x := a[i] ^ b[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return Bits
}

// GenRandomKeyAtCPL returns random key bytes that hash to an id sharing
// exactly cpl leading bits with local. Finding one takes about 2^(cpl+1)
// hashes, so cpl should stay small.
func GenRandomKeyAtCPL(local ID, cpl int) []byte {
	if cpl < 0 || cpl >= Bits {
		panic("keyspace: cpl out of range")
	}

	key := make([]byte, Len)
	for {
		_, _ = rand.Read(key)
		if CommonPrefixLen(Key(key), local) == cpl {
			return key
		}
	}
}
