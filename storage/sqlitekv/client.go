// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package sqlitekv

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/dht/storage"
)

var (
	mon = monkit.Package()

	// Error is the default sqlitekv errs class
	Error = errs.Class("sqlitekv error")
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   BLOB NOT NULL PRIMARY KEY,
	value BLOB
)`

// Client is the entrypoint into a sqlite backed key value store
type Client struct {
	db   *sql.DB
	Path string
}

// New opens the sqlite database at path and creates the table when missing.
func New(path string) (*Client, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	// sqlite allows a single writer; one connection also keeps ":memory:"
	// databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, errs.Combine(Error.Wrap(err), Error.Wrap(db.Close()))
	}

	return &Client{db: db, Path: path}, nil
}

// Put sets the value for the provided key.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	_, err = client.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		[]byte(key), []byte(value))
	return Error.Wrap(err)
}

// Get looks up the provided key and returns its value.
func (client *Client) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	var value []byte
	err = client.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, []byte(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return storage.Value(value), nil
}

// Delete deletes the given key and its associated value.
func (client *Client) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	result, err := client.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, []byte(key))
	if err != nil {
		return Error.Wrap(err)
	}
	numRows, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if numRows == 0 {
		return storage.ErrKeyNotFound.New("%q", key)
	}
	return nil
}

// List returns either a list of known keys, in order, or an error.
func (client *Client) List(ctx context.Context, first storage.Key, limit int) (_ storage.Keys, err error) {
	defer mon.Task()(&ctx)(&err)

	// a negative LIMIT means no limit in sqlite
	if limit <= 0 {
		limit = -1
	}
	// a nil first key would bind as NULL
	rows, err := client.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE key >= ? ORDER BY key LIMIT ?`,
		append([]byte{}, first...), limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var keys storage.Keys
	for rows.Next() {
		var key []byte
		if err := rows.Scan(&key); err != nil {
			return nil, Error.Wrap(err)
		}
		keys = append(keys, storage.Key(key))
	}
	return keys, Error.Wrap(rows.Err())
}

// Close closes the client
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
