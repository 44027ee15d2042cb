// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package redisserver starts redis servers for tests.
package redisserver

import (
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis"
	"github.com/zeebo/errs"
)

// Error is the error class for test server failures.
var Error = errs.Class("redisserver")

const readyTimeout = 3 * time.Second

// Start starts a local redis-server when one is installed and an in-process
// miniredis otherwise.
func Start() (addr string, cleanup func(), err error) {
	if addr, cleanup, err := Process(); err == nil {
		return addr, cleanup, nil
	}
	return Mini()
}

// Process runs redis-server on a free local port without persistence.
func Process() (addr string, cleanup func(), err error) {
	binary, err := exec.LookPath("redis-server")
	if err != nil {
		return "", nil, Error.Wrap(err)
	}

	port, err := freePort()
	if err != nil {
		return "", nil, Error.Wrap(err)
	}
	dir, err := os.MkdirTemp("", "dht-redis")
	if err != nil {
		return "", nil, Error.Wrap(err)
	}

	cmd := exec.Command(binary,
		"--bind", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--dir", dir,
		"--save", "",
		"--appendonly", "no",
		"--databases", "2",
	)
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, Error.Wrap(err)
	}
	cleanup = func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = os.RemoveAll(dir)
	}

	addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	if err := waitReady(addr); err != nil {
		cleanup()
		return "", nil, Error.Wrap(err)
	}
	return addr, cleanup, nil
}

// Mini starts an in-process miniredis server.
func Mini() (addr string, cleanup func(), err error) {
	server, err := miniredis.Run()
	if err != nil {
		return "", nil, Error.Wrap(err)
	}
	return server.Addr(), server.Close, nil
}

func freePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	return port, listener.Close()
}

func waitReady(addr string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxElapsedTime = readyTimeout
	return backoff.Retry(func() error {
		return client.Ping().Err()
	}, policy)
}
