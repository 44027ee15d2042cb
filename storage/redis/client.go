// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-redis/redis"
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/dht/storage"
)

var (
	mon = monkit.Package()

	// Error is a redis error
	Error = errs.Class("redis error")
)

const scanBatch = 1000

// globEscaper escapes the characters SCAN treats as patterns.
var globEscaper = strings.NewReplacer(`\`, `\\`, "?", `\?`, "*", `\*`, "[", `\[`, "]", `\]`)

// Client is the entrypoint into Redis
type Client struct {
	db        *redis.Client
	namespace string
}

// NewClient returns a configured Client instance, verifying a successful connection to redis
func NewClient(address, password string, db int, namespace string) (*Client, error) {
	client := &Client{
		db: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
		namespace: namespace,
	}

	// ping here to verify we are able to connect to redis with the initialized client.
	if err := client.db.Ping().Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.db.Close())
	}

	return client, nil
}

// NewClientFrom returns a configured Client instance from a redis address of
// the form redis://host:port?db=0&password=secret&namespace=node1
func NewClientFrom(address string) (*Client, error) {
	redisurl, err := url.Parse(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if redisurl.Scheme != "redis" {
		return nil, Error.New("not a redis:// formatted address")
	}

	q := redisurl.Query()

	db := 0
	if s := q.Get("db"); s != "" {
		db, err = strconv.Atoi(s)
		if err != nil {
			return nil, Error.New("invalid db %q: %v", s, err)
		}
	}

	return NewClient(redisurl.Host, q.Get("password"), db, q.Get("namespace"))
}

func (client *Client) key(key storage.Key) string {
	return client.namespace + string(key)
}

// Put adds a value to the provided key in redis, returning an error on failure.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	err = client.db.WithContext(ctx).Set(client.key(key), []byte(value), 0).Err()
	if err != nil {
		return Error.New("put error: %v", err)
	}
	return nil
}

// Get looks up the provided key from redis returning either an error or the result.
func (client *Client) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	value, err := client.db.WithContext(ctx).Get(client.key(key)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	if err != nil {
		return nil, Error.New("get error: %v", err)
	}
	return storage.Value(value), nil
}

// Delete deletes a key/value pair from redis, for a given the key
func (client *Client) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	n, err := client.db.WithContext(ctx).Del(client.key(key)).Result()
	if err != nil {
		return Error.New("delete error: %v", err)
	}
	if n == 0 {
		return storage.ErrKeyNotFound.New("%q", key)
	}
	return nil
}

// List returns either a list of keys for which redis has values or an error.
func (client *Client) List(ctx context.Context, first storage.Key, limit int) (_ storage.Keys, err error) {
	defer mon.Task()(&ctx)(&err)

	db := client.db.WithContext(ctx)
	match := globEscaper.Replace(client.namespace) + "*"

	var all storage.Keys
	var cursor uint64
	for {
		var names []string
		names, cursor, err = db.Scan(cursor, match, scanBatch).Result()
		if err != nil {
			return nil, Error.New("scan error: %v", err)
		}
		for _, name := range names {
			key := storage.Key(name[len(client.namespace):])
			if !key.Less(first) {
				all = append(all, key)
			}
		}
		if cursor == 0 {
			break
		}
	}

	sort.Slice(all, func(i, k int) bool { return all[i].Less(all[k]) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Close closes a redis client
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
