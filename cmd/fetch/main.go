package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"defi-parity/internal/alert"
	"defi-parity/internal/catalog"
	"defi-parity/internal/config"
	"defi-parity/internal/fetcher"
	"defi-parity/internal/normalize"
	"defi-parity/internal/provider"
	"defi-parity/internal/retry"
	"defi-parity/internal/storage"
	"defi-parity/internal/storage/memory"
	"defi-parity/internal/storage/migrations"
	pgstore "defi-parity/internal/storage/postgres"
)

var (
	flagDryRun    bool
	flagUseMemory bool
	flagDate      string
	flagDelay     time.Duration
)

func main() {
	cmd := &cobra.Command{
		Use:           "fetch",
		Short:         "Run one valuation fetch cycle over all catalog entities",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "fetch and normalize without writing to storage")
	cmd.Flags().BoolVar(&flagUseMemory, "use-memory", false, "use in-memory storage instead of PostgreSQL")
	cmd.Flags().StringVar(&flagDate, "date", "", "override snapshot date (YYYY-MM-DD), for backfills")
	cmd.Flags().DurationVar(&flagDelay, "delay", 0, "pause between entities (default from FETCH_DELAY)")

	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("fetch failed")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	var capturedAt time.Time
	if flagDate != "" {
		capturedAt, err = time.Parse("2006-01-02", flagDate)
		if err != nil {
			return fmt.Errorf("parse --date: %w", err)
		}
	}

	delay := cfg.FetchDelay
	if flagDelay > 0 {
		delay = flagDelay
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.FetchTimeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var (
		catalogStore  storage.CatalogStore
		snapshotStore storage.SnapshotStore
	)
	if flagUseMemory {
		store := memory.New()
		catalogStore = store
		snapshotStore = store
	} else {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required (or pass --use-memory)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		catalogStore = pgstore.NewCatalogStore(pool)
		snapshotStore = pgstore.NewSnapshotStore(pool)
	}

	runner, err := fetcher.New(fetcher.Options{
		Catalog:   catalogStore,
		Snapshots: snapshotStore,
		Providers: fetcher.Providers{
			TradFi: provider.NewFMPClient("", cfg.FMPAPIKey, logrus.NewEntry(logger)),
			Token:  provider.NewCoinGeckoClient(cfg.CoinGeckoAPIKey, logrus.NewEntry(logger)),
			Fees:   provider.NewDefiLlamaClient("", logrus.NewEntry(logger)),
		},
		Normalizer:  normalize.New(catalog.RevenueAdjustments()),
		Retry:       retry.DefaultPolicy(),
		Alerter:     alert.NewWebhook(cfg.AlertWebhookURL, logger),
		EntityDelay: delay,
		DryRun:      flagDryRun,
		CapturedAt:  capturedAt,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	for _, f := range result.Failures {
		logger.WithFields(logrus.Fields{
			"entity": f.EntityID,
			"error":  f.Err,
		}).Warn("entity failed")
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d entities failed", result.Failed, result.Failed+result.Succeeded)
	}
	return nil
}
