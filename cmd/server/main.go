package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"defi-parity/internal/aggregate"
	"defi-parity/internal/alert"
	"defi-parity/internal/catalog"
	"defi-parity/internal/config"
	"defi-parity/internal/fetcher"
	"defi-parity/internal/normalize"
	"defi-parity/internal/provider"
	"defi-parity/internal/retry"
	"defi-parity/internal/server"
	"defi-parity/internal/storage"
	"defi-parity/internal/storage/memory"
	"defi-parity/internal/storage/migrations"
	pgstore "defi-parity/internal/storage/postgres"
)

func main() {
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load configuration")
	}
	if err := catalog.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid catalog")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		catalogStore  storage.CatalogStore
		snapshotStore storage.SnapshotStore
	)
	if *useMemory {
		store := memory.New()
		catalogStore = store
		snapshotStore = store
		logger.Info("using in-memory storage")
	} else {
		if cfg.DatabaseURL == "" {
			logger.Fatal("DATABASE_URL is required (or pass --use-memory)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("connect to postgres")
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.WithError(err).Fatal("run migrations")
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
		EntityDelay: cfg.FetchDelay,
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("build fetcher")
	}

	srv := server.New(server.Options{
		Addr:       cfg.ListenAddr,
		Aggregator: aggregate.New(snapshotStore),
		Fetcher:    runner,
		CronSecret: cfg.CronSecret,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("server stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
