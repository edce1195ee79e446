// Command duskline-janitor runs the periodic MarkedForDeletion reclaim
// sweep against every index in the configured metastore.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duskline/duskline/internal/config"
	"github.com/duskline/duskline/internal/janitor"
	"github.com/duskline/duskline/internal/logging"
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
		Use: "duskline-janitor",
		Short: "reclaims marked-for-deletion splits after their grace period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, cmd)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a YAML/JSON/TOML config file")
	flags.String("log-level", "", "Silent, Fatal, Error, Warn, Info, Debug, Trace")
	flags.Duration("grace-period", 0, "how long a split must sit in marked_for_deletion before reclaim")
	flags.Duration("interval", 0, "how often the reclaim sweep runs")
	return cmd
}

func run(v *viper.Viper, cmd *cobra.Command) error {
	cfg := config.DefaultJanitorConfig()
	if err := config.Load(v, cfgFile, cmd.Flags(), &cfg); err != nil {
		return err
	}
	logging.SetLevel(logging.Level(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ms, err := config.BuildMetastore(ctx, cfg.Metastore)
	if err != nil {
		return fmt.Errorf("janitor: building metastore: %w", err)
	}
	backend, err := config.BuildStorageBackend(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("janitor: building storage backend: %w", err)
	}
	sem := splitstore.NewUploadSemaphore(cfg.SplitStore.MaxConcurrentUploads, cfg.SplitStore.IndexingUploadShare)
	store, err := splitstore.New(backend, cfg.SplitStore.CacheRoot, cfg.SplitStore.MaxNumSplits, cfg.SplitStore.MaxNumBytes, sem)
	if err != nil {
		return fmt.Errorf("janitor: building split store: %w", err)
	}

	j := janitor.New(janitor.Config{
		Metastore: ms,
		SplitStore: store,
		GracePeriod: cfg.GracePeriod,
		Interval: cfg.Interval,
	})

	logging.Infof("janitor: starting sweep loop, interval=%s grace_period=%s", cfg.Interval, cfg.GracePeriod)
	go j.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logging.Infof("janitor: shutting down")
	cancel()
	return nil
}
