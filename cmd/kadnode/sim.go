// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/dht/internal/simplanet"
	"storj.io/dht/pkg/kademlia"
	"storj.io/dht/pkg/pb"
	"storj.io/dht/pkg/peer"
	"storj.io/dht/pkg/process"
	"storj.io/dht/storage"
	"storj.io/dht/storage/boltdb"
	"storj.io/dht/storage/redis"
	"storj.io/dht/storage/sqlitekv"
	"storj.io/dht/storage/teststore"
)

// SimConfig configures a simulated network run.
type SimConfig struct {
	Nodes   int           `help:"number of simulated nodes" default:"20" user:"true"`
	Store   string        `help:"record store: memory, bolt://<dir>, sqlite://<dir> or redis://<host:port>" default:"memory" devDefault:"bolt://$CONFDIR/records" user:"true"`
	Latency time.Duration `help:"latency added to every simulated request" default:"0s"`
	Timeout time.Duration `help:"maximum duration of the whole run" default:"1m"`

	Content string `help:"content announced with Provide and searched with FindProviders" default:"hello kademlia"`
	Key     string `help:"record key used for PutValue and SearchValue" default:"/kadnode/greeting"`
	Value   string `help:"record value stored with PutValue" default:"hello"`

	DumpTables bool `help:"print the routing table of every node when done" default:"false"`

	Kademlia kademlia.Config
}

func cmdSim(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := process.Ctx(cmd)
	defer cancel()
	defer mon.Task()(&ctx)(&err)

	if simCfg.Nodes < 2 {
		return errs.New("need at least 2 nodes, got %d", simCfg.Nodes)
	}
	// bootstrap peers are assigned by the planet
	simCfg.Kademlia.BootstrapPeers = nil
	if err := simCfg.Kademlia.Verify(); err != nil {
		return err
	}

	ctx, cancel = context.WithTimeout(ctx, simCfg.Timeout)
	defer cancel()

	log := zap.L()
	planet, err := simplanet.New(log, simplanet.Config{
		NodeCount: simCfg.Nodes,
		Kademlia:  simCfg.Kademlia,
		Latency:   simCfg.Latency,
		NewStore: func(index int) (storage.KeyValueStore, error) {
			return openStore(simCfg.Store, index)
		},
	})
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, planet.Shutdown()) }()

	start := time.Now()
	if err := planet.Start(ctx); err != nil {
		return err
	}
	log.Info("network bootstrapped", zap.Int("nodes", planet.Size()), zap.Duration("took", time.Since(start)))

	sim := &simulation{log: log, planet: planet, config: simCfg}
	err = errs.Combine(
		sim.providers(ctx),
		sim.values(ctx),
		sim.peers(ctx),
	)
	if simCfg.DumpTables {
		sim.dumpTables()
	}
	return err
}

// openStore opens the record store of the node at index.
func openStore(backend string, index int) (storage.KeyValueStore, error) {
	name := fmt.Sprintf("node%d", index)
	switch {
	case backend == "memory":
		return teststore.New(), nil
	case strings.HasPrefix(backend, "bolt://"):
		dir := strings.TrimPrefix(backend, "bolt://")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		db, err := boltdb.New(filepath.Join(dir, name+".db"), "records")
		if err != nil {
			return nil, err
		}
		return db, nil
	case strings.HasPrefix(backend, "sqlite://"):
		dir := strings.TrimPrefix(backend, "sqlite://")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		db, err := sqlitekv.New(filepath.Join(dir, name+".sqlite"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case strings.HasPrefix(backend, "redis://"):
		u, err := url.Parse(backend)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("namespace", name+"/")
		u.RawQuery = q.Encode()

		db, err := redis.NewClientFrom(u.String())
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, errs.New("unknown store %q", backend)
}

type simulation struct {
	log    *zap.Logger
	planet *simplanet.Planet
	config SimConfig
}

func (sim *simulation) node(index int) *simplanet.Node {
	return sim.planet.Nodes[index%sim.planet.Size()]
}

// providers announces the content from one node and looks it up from
// another.
func (sim *simulation) providers(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	hash, err := multihash.Sum([]byte(sim.config.Content), multihash.SHA2_256, -1)
	if err != nil {
		return err
	}
	c := cid.NewCidV1(cid.Raw, hash)

	provider, seeker := sim.node(1), sim.node(sim.planet.Size()-1)
	if err := provider.Kademlia.Provide(ctx, c); err != nil {
		return errs.New("provide failed: %v", err)
	}
	sim.log.Info("provided", zap.String("node", provider.Name), zap.Stringer("cid", c))

	var found []peer.ID
	err = seeker.Kademlia.FindProviders(ctx, c, 1, func(info peer.AddrInfo) {
		found = append(found, info.ID)
	})
	if err != nil {
		return errs.New("find providers failed: %v", err)
	}
	if len(found) == 0 {
		return errs.New("no providers found for %s", c)
	}
	sim.log.Info("found providers", zap.String("node", seeker.Name), zap.Stringers("providers", found))
	return nil
}

// values stores a record from one node and searches it from another.
func (sim *simulation) values(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	key := []byte(sim.config.Key)
	writer, reader := sim.node(2), sim.node(sim.planet.Size()/2+1)

	if err := writer.Kademlia.PutValue(ctx, key, []byte(sim.config.Value)); err != nil {
		return errs.New("put value failed: %v", err)
	}
	sim.log.Info("stored record", zap.String("node", writer.Name), zap.String("key", sim.config.Key))

	var best *pb.Record
	err = reader.Kademlia.SearchValue(ctx, key, sim.config.Kademlia.Quorum, func(rec *pb.Record) {
		best = rec
		sim.log.Debug("better record", zap.ByteString("value", rec.Value), zap.Uint64("sequence", rec.Sequence))
	})
	if err != nil {
		return errs.New("search value failed: %v", err)
	}
	if best == nil {
		return errs.New("record %q not found", key)
	}
	sim.log.Info("found record", zap.String("node", reader.Name),
		zap.ByteString("value", best.Value), zap.Uint64("sequence", best.Sequence))
	return nil
}

// peers looks up the last node from the first one.
func (sim *simulation) peers(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	seeker, target := sim.node(0), sim.node(sim.planet.Size()-1)
	info, found, err := seeker.Kademlia.FindPeer(ctx, target.ID())
	if err != nil {
		return errs.New("find peer failed: %v", err)
	}
	if !found {
		return errs.New("peer %s not found", target.ID())
	}
	sim.log.Info("found peer", zap.String("node", seeker.Name), zap.Stringer("peer", info))
	return nil
}

func (sim *simulation) dumpTables() {
	for _, node := range sim.planet.Nodes {
		fmt.Printf("%s %s: %d peers\n", node.Name, node.ID(), node.Inspector.CountPeers())
		for _, bucket := range node.Inspector.GetBuckets() {
			if len(bucket.Peers) == 0 {
				continue
			}
			fmt.Printf("  bucket %3d:", bucket.Index)
			for _, p := range bucket.Peers {
				fmt.Printf(" %s", p.ID.ShortString())
			}
			fmt.Println()
		}
	}
}
