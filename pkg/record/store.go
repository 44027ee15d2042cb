// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package record

import (
	"context"
	"sync"

	proto "github.com/gogo/protobuf/proto"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/dht/pkg/pb"
	"storj.io/dht/storage"
)

var mon = monkit.Package()

// Store keeps the records this node is responsible for.
type Store struct {
	log *zap.Logger
	db  storage.KeyValueStore

	// mu makes the compare and write in Put atomic.
	mu sync.Mutex
}

// NewStore returns a record store on top of db.
func NewStore(log *zap.Logger, db storage.KeyValueStore) *Store {
	return &Store{log: log, db: db}
}

// Put stores rec unless a better record is already known. It returns whether
// rec was stored.
func (store *Store) Put(ctx context.Context, rec *pb.Record) (stored bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := Validate(rec); err != nil {
		return false, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	existing, err := store.Get(ctx, rec.Key)
	if err != nil {
		return false, err
	}
	if existing != nil && !Better(rec, existing) {
		return false, nil
	}

	data, err := proto.Marshal(rec)
	if err != nil {
		return false, Error.Wrap(err)
	}
	if err := store.db.Put(ctx, storage.Key(rec.Key), storage.Value(data)); err != nil {
		return false, Error.Wrap(err)
	}
	return true, nil
}

// Get returns the record for key or nil when there is none. Records that no
// longer validate are dropped.
func (store *Store) Get(ctx context.Context, key []byte) (_ *pb.Record, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := store.db.Get(ctx, storage.Key(key))
	if storage.ErrKeyNotFound.Has(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	rec := &pb.Record{}
	if err := proto.Unmarshal(data, rec); err != nil {
		store.log.Error("corrupted record", zap.ByteString("key", key), zap.Error(err))
		return nil, store.drop(ctx, key)
	}
	if err := ValidateFor(key, rec); err != nil {
		store.log.Error("stored record is invalid", zap.ByteString("key", key), zap.Error(err))
		return nil, store.drop(ctx, key)
	}
	return rec, nil
}

func (store *Store) drop(ctx context.Context, key []byte) error {
	err := store.db.Delete(ctx, storage.Key(key))
	if err != nil && !storage.ErrKeyNotFound.Has(err) {
		return Error.Wrap(err)
	}
	return nil
}

// Keys returns the keys of all stored records.
func (store *Store) Keys(ctx context.Context) (_ [][]byte, err error) {
	defer mon.Task()(&ctx)(&err)

	keys, err := store.db.List(ctx, nil, 0)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	out := make([][]byte, 0, len(keys))
	for _, key := range keys {
		out = append(out, []byte(key))
	}
	return out, nil
}

// Close closes the underlying database.
func (store *Store) Close() error {
	return Error.Wrap(store.db.Close())
}
