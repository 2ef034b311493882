package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"breadcrumb-pipeline/internal/config"
	"breadcrumb-pipeline/internal/db"
	"breadcrumb-pipeline/internal/metrics"
)

// cfg is loaded from .env and the environment before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "breadcrumbs",
	Short: "Collect, persist and load vehicle breadcrumb telemetry",
	Long: `breadcrumbs polls the vehicle breadcrumb API, streams every record through
NATS JetStream into per-day JSONL files, and loads each day into the
Trip/BreadCrumb tables with derived service keys and speeds.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(schemaCmd)
}

// startMetrics serves /metrics until ctx is done. It returns nil when
// METRICS_ADDR is unset.
func startMetrics(ctx context.Context) *metrics.Collector {
	if cfg.MetricsAddr == "" {
		return nil
	}
	mcol := metrics.NewCollector(cfg.BatchSize)
	srv := mcol.Serve(cfg.MetricsAddr)
	go func() {
		<-ctx.Done()
		// Shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return mcol
}

// openStore connects to the configured store. A non-empty database replaces
// the database named in a postgres DSN.
func openStore(ctx context.Context, database string) (*db.Store, error) {
	dsn := cfg.StoreDSN()
	if database != "" {
		if cfg.StoreDriver != db.DriverPostgres {
			return nil, fmt.Errorf("--database requires STORE_DRIVER=postgres")
		}
		var err error
		if dsn, err = db.WithDBName(dsn, database); err != nil {
			return nil, fmt.Errorf("compose DSN: %w", err)
		}
	}
	store, err := db.OpenStore(ctx, cfg.StoreDriver, dsn)
	if err != nil {
		return nil, err
	}
	log.Printf("connected to %s store", store.Driver())
	return store, nil
}
