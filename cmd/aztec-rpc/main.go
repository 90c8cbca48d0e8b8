package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vocdoni/aztec-rpc/api"
	"github.com/vocdoni/aztec-rpc/aztecrpc"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/merkle"
	"github.com/vocdoni/aztec-rpc/node"
	"github.com/vocdoni/aztec-rpc/storage"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting aztec-rpc", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Fatalf("aztec-rpc stopped: %v", err)
	}
	log.Info("aztec-rpc stopped")
}

// run starts the node (embedded or remote), the client and its API, and
// blocks until ctx is canceled or a service fails.
func run(ctx context.Context, cfg *Config) error {
	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", db.TypePebble)
	database, err := metadb.New(db.TypePebble, cfg.Datadir)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	st := storage.New(database)
	defer st.Close()

	forest, err := merkle.NewForest(st.ForestDB(), nil)
	if err != nil {
		return fmt.Errorf("failed to open merkle forest: %w", err)
	}
	log.Infow("merkle forest ready", "height", forest.BlockNumber())

	g, ctx := errgroup.WithContext(ctx)

	var n node.Node
	var local *node.Local
	if cfg.Node.URL == "" {
		// the embedded node shares the forest with the client
		local = node.NewLocal(forest, node.LocalConfig{
			ChainID: cfg.Rollup.chainID(),
			Version: cfg.Rollup.version(),
		})
		log.Infow("starting embedded node", "mineInterval", cfg.Node.MineInterval.String())
		local.Start(ctx, cfg.Node.MineInterval)
		n = local
	} else {
		remote, err := node.Dial(ctx, cfg.Node.URL, node.DefaultClientConfig())
		if err != nil {
			return err
		}
		defer remote.Close()
		syncer := aztecrpc.NewSynchronizer(remote, forest, cfg.Node.SyncBatch)
		if _, err := syncer.Sync(ctx); err != nil {
			return fmt.Errorf("initial sync failed: %w", err)
		}
		log.Infow("connected to node", "url", cfg.Node.URL, "height", forest.BlockNumber())
		syncer.Start(ctx, cfg.Node.SyncInterval)
		n = remote
	}

	client := aztecrpc.New(st, forest, n, aztecrpc.Config{
		ChainID: cfg.Rollup.chainID(),
		Version: cfg.Rollup.version(),
	})
	a, err := api.New(&api.APIConfig{Host: cfg.API.Host, Port: cfg.API.Port, Client: client})
	if err != nil {
		return err
	}
	if local != nil {
		srv, err := node.NewRPCServer(local)
		if err != nil {
			return err
		}
		defer srv.Stop()
		log.Infow("register handler", "endpoint", api.NodeRPCEndpoint, "method", "POST")
		a.Router().Handle(api.NodeRPCEndpoint, srv)
	}

	g.Go(func() error {
		return a.Start(ctx)
	})
	log.Info("aztec-rpc is running")
	return g.Wait()
}
