// Command duskline-controlplane runs the scheduler reconciliation loop
// of §4.5 against a statically configured set of indexer nodes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/duskline/duskline/internal/config"
	"github.com/duskline/duskline/internal/eventbus"
	"github.com/duskline/duskline/internal/gossip"
	grpcapi "github.com/duskline/duskline/internal/indexerd/grpcapi"
	"github.com/duskline/duskline/internal/logging"
	"github.com/duskline/duskline/internal/metastore/controlplaneproxy"
	"github.com/duskline/duskline/internal/scheduler"
)

var cfgFile string
var indexersFlag []string

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use: "duskline-controlplane",
		Short: "runs the duskline control-plane scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, cmd)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a YAML/JSON/TOML config file")
	flags.String("log-level", "", "Silent, Fatal, Error, Warn, Info, Debug, Trace")
	flags.StringSliceVar(&indexersFlag, "indexer", nil, "node_id=grpc_addr pair, repeatable, naming a statically known indexer")
	return cmd
}

func run(v *viper.Viper, cmd *cobra.Command) error {
	cfg := config.DefaultControlPlaneConfig()
	if err := config.Load(v, cfgFile, cmd.Flags(), &cfg); err != nil {
		return err
	}
	logging.SetLevel(logging.Level(cfg.LogLevel))

	nodes, err := parseStaticNodes(indexersFlag)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("controlplane: no --indexer nodes configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ms, err := config.BuildMetastore(ctx, cfg.Metastore)
	if err != nil {
		return fmt.Errorf("controlplane: building metastore: %w", err)
	}
	bus := eventbus.New()
	proxied := controlplaneproxy.New(ms, bus)

	registry := gossip.NewRegistry()
	poller := gossip.NewPoller(registry, nodes, scheduler.MinDurationBetweenScheduling)
	go poller.Run(ctx)

	sched := scheduler.New(scheduler.Config{
		Metastore: proxied,
		Gossip: registry,
		ClientOf: dialIndexer,
		Bus: bus,
	})

	go sched.Run(ctx)
	logging.Infof("controlplane: scheduling across %d statically configured indexer(s)", len(nodes))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logging.Infof("controlplane: shutting down")
	cancel()
	return nil
}

func dialIndexer(node scheduler.Node) scheduler.IndexerClient {
	conn, err := grpc.NewClient(node.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return failingClient{err: err}
	}
	return grpcapi.NewClient(conn)
}

type failingClient struct{ err error }

func (f failingClient) ApplyIndexingPlan(ctx context.Context, tasks []scheduler.IndexingTask) error {
	return f.err
}

func parseStaticNodes(raw []string) ([]gossip.StaticNode, error) {
	nodes := make([]gossip.StaticNode, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("controlplane: malformed --indexer %q, want node_id=grpc_addr", entry)
		}
		nodes = append(nodes, gossip.StaticNode{
			NodeID: parts[0],
			GRPCAddr: parts[1],
			EnabledServices: []string{"indexer"},
		})
	}
	return nodes, nil
}
