// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package record implements signed key value records.
package record

import (
	"bytes"
	"encoding/binary"

	"github.com/zeebo/errs"
	"golang.org/x/crypto/ed25519"

	"storj.io/dht/pkg/pb"
)

var (
	// Error is the default record error class.
	Error = errs.Class("record error")
	// ErrInvalidRecord is returned for records that fail validation.
	ErrInvalidRecord = errs.Class("invalid record")
)

// Sign creates a record for key and value signed by priv.
func Sign(priv ed25519.PrivateKey, key, value []byte, sequence uint64) (*pb.Record, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, Error.New("invalid private key size %d", len(priv))
	}
	if len(key) == 0 {
		return nil, ErrInvalidRecord.New("empty key")
	}

	rec := &pb.Record{
		Key:       append([]byte(nil), key...),
		Value:     append([]byte(nil), value...),
		PublicKey: append([]byte(nil), priv.Public().(ed25519.PublicKey)...),
		Sequence:  sequence,
	}
	rec.Signature = ed25519.Sign(priv, signedData(rec))
	return rec, nil
}

// signedData is key, value and sequence, each length-prefixed.
func signedData(rec *pb.Record) []byte {
	var buf bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte

	write := func(data []byte) {
		n := binary.PutUvarint(scratch[:], uint64(len(data)))
		buf.Write(scratch[:n])
		buf.Write(data)
	}
	write(rec.Key)
	write(rec.Value)

	n := binary.PutUvarint(scratch[:], rec.Sequence)
	buf.Write(scratch[:n])
	return buf.Bytes()
}

// Validate checks that rec is well formed and correctly signed.
func Validate(rec *pb.Record) error {
	switch {
	case rec == nil:
		return ErrInvalidRecord.New("missing record")
	case len(rec.Key) == 0:
		return ErrInvalidRecord.New("empty key")
	case len(rec.PublicKey) != ed25519.PublicKeySize:
		return ErrInvalidRecord.New("invalid public key size %d", len(rec.PublicKey))
	case len(rec.Signature) != ed25519.SignatureSize:
		return ErrInvalidRecord.New("invalid signature size %d", len(rec.Signature))
	}

	if !ed25519.Verify(ed25519.PublicKey(rec.PublicKey), signedData(rec), rec.Signature) {
		return ErrInvalidRecord.New("signature mismatch for %q", rec.Key)
	}
	return nil
}

// ValidateFor checks rec and that it is stored under key.
func ValidateFor(key []byte, rec *pb.Record) error {
	if err := Validate(rec); err != nil {
		return err
	}
	if !bytes.Equal(rec.Key, key) {
		return ErrInvalidRecord.New("record for %q returned for %q", rec.Key, key)
	}
	return nil
}

// Better returns whether a should replace b. Higher sequence numbers win;
// on a tie the larger value wins so every node picks the same record.
func Better(a, b *pb.Record) bool {
	if b == nil {
		return a != nil
	}
	if a == nil {
		return false
	}
	if a.Sequence != b.Sequence {
		return a.Sequence > b.Sequence
	}
	return bytes.Compare(a.Value, b.Value) > 0
}

// Select returns the index of the best valid record for key. Invalid
// records are skipped.
func Select(key []byte, recs []*pb.Record) (int, error) {
	best := -1
	var group errs.Group
	for i, rec := range recs {
		if err := ValidateFor(key, rec); err != nil {
			group.Add(err)
			continue
		}
		if best < 0 || Better(rec, recs[best]) {
			best = i
		}
	}
	if best < 0 {
		if err := group.Err(); err != nil {
			return -1, err
		}
		return -1, Error.New("no records for %q", key)
	}
	return best, nil
}

// Equal returns whether a and b carry the same signed content.
func Equal(a, b *pb.Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Sequence == b.Sequence &&
		bytes.Equal(a.Key, b.Key) &&
		bytes.Equal(a.Value, b.Value) &&
		bytes.Equal(a.PublicKey, b.PublicKey) &&
		bytes.Equal(a.Signature, b.Signature)
}
