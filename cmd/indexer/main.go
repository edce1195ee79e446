// Command duskline-indexer runs one indexer node: it serves
// ApplyIndexingPlan over gRPC, supervises the ingest pipelines and
// merge planners that plan assigns it, and advertises itself on the
// grpc_addr its own config names so the control plane's gossip view
// can reach it in a single-process deployment.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/duskline/duskline/internal/config"
	"github.com/duskline/duskline/internal/eventbus"
	"github.com/duskline/duskline/internal/indexerd"
	grpcapi "github.com/duskline/duskline/internal/indexerd/grpcapi"
	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore/controlplaneproxy"
	"github.com/duskline/duskline/internal/pipeline/jsoncodec"
	"github.com/duskline/duskline/internal/splitstore"
)

var cfgFile string

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use: "duskline-indexer",
		Short: "runs one duskline indexer node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, cmd)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a YAML/JSON/TOML config file")
	flags.String("node-id", "", "stable identifier for this node (default: a generated UUID)")
	flags.String("grpc-addr", "", "address this node's IndexerControl service listens on")
	flags.String("log-level", "", "Silent, Fatal, Error, Warn, Info, Debug, Trace")
	return cmd
}

func run(v *viper.Viper, cmd *cobra.Command) error {
	cfg := config.DefaultIndexerConfig()
	if err := config.Load(v, cfgFile, cmd.Flags(), &cfg); err != nil {
		return err
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = ":7280"
	}
	logging.SetLevel(logging.Level(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ms, err := config.BuildMetastore(ctx, cfg.Metastore)
	if err != nil {
		return fmt.Errorf("indexer: building metastore: %w", err)
	}
	backend, err := config.BuildStorageBackend(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("indexer: building storage backend: %w", err)
	}
	sem := splitstore.NewUploadSemaphore(cfg.SplitStore.MaxConcurrentUploads, cfg.SplitStore.IndexingUploadShare)
	store, err := splitstore.New(backend, cfg.SplitStore.CacheRoot, cfg.SplitStore.MaxNumSplits, cfg.SplitStore.MaxNumBytes, sem)
	if err != nil {
		return fmt.Errorf("indexer: building split store: %w", err)
	}

	bus := eventbus.New()
	proxied := controlplaneproxy.New(ms, bus)

	rt := indexerd.New(indexerd.RuntimeConfig{
		NodeID: cfg.NodeID,
		Metastore: proxied,
		SplitStore: store,
		Codec: jsoncodec.New(),
		Bus: bus,
		ScratchRoot: cfg.ScratchRoot,
		TickInterval: cfg.TickInterval,
		MaturityAfter: cfg.MaturityAfter,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("indexer: listening on %s: %w", cfg.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer()
	grpcapi.NewServer(rt.ApplyIndexingPlan, rt.RunningTasks).Register(grpcServer)

	go func() {
		logging.Infof("indexer %s: serving IndexerControl on %s", cfg.NodeID, cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logging.Errorf("indexer %s: grpc server exited: %v", cfg.NodeID, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logging.Infof("indexer %s: shutting down", cfg.NodeID)
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		grpcServer.Stop()
	}
	cancel()
	return nil
}
