// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package storelogger wraps a storage.KeyValueStore and logs every call.
package storelogger

import (
	"context"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/dht/storage"
)

var mon = monkit.Package()

// previewSize is how many bytes of a value are logged.
const previewSize = 16

// Logger is a storage.KeyValueStore that logs calls at debug level
type Logger struct {
	log   *zap.Logger
	store storage.KeyValueStore
}

// New wraps store so that every call is logged to log.
func New(log *zap.Logger, store storage.KeyValueStore) *Logger {
	return &Logger{log: log, store: store}
}

// Put adds a value to store
func (store *Logger) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	err = store.store.Put(ctx, key, value)
	store.log.Debug("put", zap.Stringer("key", key), zap.Int("size", len(value)),
		zap.Binary("preview", preview(value)), zap.Error(err))
	return err
}

// Get gets a value from the store
func (store *Logger) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	value, err := store.store.Get(ctx, key)
	if storage.ErrKeyNotFound.Has(err) {
		store.log.Debug("get miss", zap.Stringer("key", key))
		return value, err
	}
	store.log.Debug("get", zap.Stringer("key", key), zap.Int("size", len(value)), zap.Error(err))
	return value, err
}

// Delete deletes key and the value
func (store *Logger) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	err = store.store.Delete(ctx, key)
	store.log.Debug("delete", zap.Stringer("key", key), zap.Error(err))
	return err
}

// List lists keys starting from first, up to limit
func (store *Logger) List(ctx context.Context, first storage.Key, limit int) (_ storage.Keys, err error) {
	defer mon.Task()(&ctx)(&err)
	keys, err := store.store.List(ctx, first, limit)
	store.log.Debug("list", zap.Stringer("first", first), zap.Int("limit", limit),
		zap.Int("count", len(keys)), zap.Error(err))
	return keys, err
}

// Close closes the underlying store
func (store *Logger) Close() error {
	store.log.Debug("close")
	return store.store.Close()
}

func preview(v storage.Value) []byte {
	if len(v) <= previewSize {
		return v
	}
	return v[:previewSize]
}
