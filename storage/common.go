// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package storage

import (
	"bytes"
	"context"

	"github.com/zeebo/errs"
)

var (
	// ErrKeyNotFound is returned when a key is not in the store.
	ErrKeyNotFound = errs.Class("key not found")
	// ErrEmptyKey is returned when an empty key is used in Put or in CompareAndSwap.
	ErrEmptyKey = errs.Class("empty key")
)

// Key is the type for the keys in a `KeyValueStore`
type Key []byte

// Value is the type for the values in a `KeyValueStore`
type Value []byte

// Keys is the type for a slice of keys in a `KeyValueStore`
type Keys []Key

// KeyValueStore is an interface describing key/value stores like redis and boltdb
type KeyValueStore interface {
	// Put adds a value to the provided key in the KeyValueStore, returning an error on failure.
	Put(ctx context.Context, key Key, value Value) error
	// Get returns the value for key or ErrKeyNotFound.
	Get(ctx context.Context, key Key) (Value, error)
	// Delete removes key, returning ErrKeyNotFound when it was not present.
	Delete(ctx context.Context, key Key) error
	// List returns up to limit keys in ascending order, starting at first.
	// A limit <= 0 lists everything.
	List(ctx context.Context, first Key, limit int) (Keys, error)
	Close() error
}

// IsZero returns true if the key is empty
func (k Key) IsZero() bool { return len(k) == 0 }

// Less returns whether k sorts before other
func (k Key) Less(other Key) bool { return bytes.Compare(k, other) < 0 }

// Equal returns whether k and other are the same key
func (k Key) Equal(other Key) bool { return bytes.Equal(k, other) }

// String implements the Stringer interface
func (k Key) String() string { return string(k) }

// Strings returns everything as strings
func (keys Keys) Strings() []string {
	strs := make([]string, 0, len(keys))
	for _, key := range keys {
		strs = append(strs, string(key))
	}
	return strs
}

// CloneKey creates a copy of key
func CloneKey(key Key) Key { return append(key[:0:0], key...) }

// CloneValue creates a copy of value
func CloneValue(value Value) Value { return append(value[:0:0], value...) }
