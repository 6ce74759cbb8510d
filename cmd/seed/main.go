package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"defi-parity/internal/catalog"
	"defi-parity/internal/config"
	"defi-parity/internal/domain"
	"defi-parity/internal/normalize"
	"defi-parity/internal/storage"
	"defi-parity/internal/storage/migrations"
	pgstore "defi-parity/internal/storage/postgres"
)

var (
	flagReset bool
	flagMock  bool
)

func main() {
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Initialize the schema and populate the entity/pair catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().BoolVar(&flagReset, "reset", false, "drop all tables before seeding")
	cmd.Flags().BoolVar(&flagMock, "mock", false, "insert a mock metrics snapshot for development")

	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("seed failed")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if flagReset {
		logger.Info("dropping existing tables")
		if err := migrations.DropAll(ctx, pool); err != nil {
			return err
		}
	}

	logger.Info("applying schema")
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}

	catalogStore := pgstore.NewCatalogStore(pool)
	for _, e := range catalog.Entities() {
		entity := e
		if err := catalogStore.UpsertEntity(ctx, &entity); err != nil {
			return fmt.Errorf("upsert entity %s: %w", e.ID, err)
		}
		logger.WithFields(logrus.Fields{"entity": e.ID, "type": e.Type}).Info("seeded entity")
	}
	for _, p := range catalog.Pairs() {
		record := p.Record()
		if err := catalogStore.UpsertPair(ctx, &record); err != nil {
			return fmt.Errorf("upsert pair %d: %w", p.ID, err)
		}
		logger.WithFields(logrus.Fields{"pair": p.ID, "theme": p.Theme}).Info("seeded pair")
	}

	if flagMock {
		logger.Info("seeding mock metrics")
		if err := seedMockMetrics(ctx, pgstore.NewSnapshotStore(pool)); err != nil {
			return err
		}
	}

	logger.Info("database seeded")
	return nil
}

type mockFigures struct {
	EquityValue float64 `json:"equityValue"`
	Revenue     float64 `json:"revenue"`
	Fees        float64 `json:"fees"`
}

// Approximate real-world figures, development only. Ratios are derived with
// the same guarded division used for live data.
var mockData = map[string]mockFigures{
	// TradFi
	"nasdaq":      {EquityValue: 42_000_000_000, Revenue: 6_500_000_000, Fees: 3_200_000_000},
	"jpmorgan":    {EquityValue: 580_000_000_000, Revenue: 130_000_000_000, Fees: 45_000_000_000},
	"blackrock":   {EquityValue: 130_000_000_000, Revenue: 18_000_000_000, Fees: 12_000_000_000},
	"apollo":      {EquityValue: 75_000_000_000, Revenue: 25_000_000_000, Fees: 8_000_000_000},
	"ibkr":        {EquityValue: 45_000_000_000, Revenue: 4_500_000_000, Fees: 2_800_000_000},
	"statestreet": {EquityValue: 26_000_000_000, Revenue: 12_000_000_000, Fees: 6_000_000_000},
	"cme":         {EquityValue: 85_000_000_000, Revenue: 5_600_000_000, Fees: 4_200_000_000},
	"tradeweb":    {EquityValue: 25_000_000_000, Revenue: 1_400_000_000, Fees: 900_000_000},
	"marketaxess": {EquityValue: 10_000_000_000, Revenue: 750_000_000, Fees: 450_000_000},
	"cboe":        {EquityValue: 20_000_000_000, Revenue: 4_000_000_000, Fees: 2_500_000_000},

	// DeFi (FDV and annualized figures)
	"uniswap":     {EquityValue: 8_500_000_000, Revenue: 800_000_000, Fees: 1_200_000_000},
	"aave":        {EquityValue: 3_200_000_000, Revenue: 250_000_000, Fees: 400_000_000},
	"lido":        {EquityValue: 2_800_000_000, Revenue: 120_000_000, Fees: 150_000_000},
	"ondo":        {EquityValue: 4_500_000_000, Revenue: 45_000_000, Fees: 30_000_000},
	"hyperliquid": {EquityValue: 12_000_000_000, Revenue: 350_000_000, Fees: 500_000_000},
	"makerdao":    {EquityValue: 2_000_000_000, Revenue: 280_000_000, Fees: 180_000_000},
	"gmx":         {EquityValue: 450_000_000, Revenue: 85_000_000, Fees: 120_000_000},
	"curve":       {EquityValue: 350_000_000, Revenue: 25_000_000, Fees: 45_000_000},
	"pendle":      {EquityValue: 650_000_000, Revenue: 55_000_000, Fees: 70_000_000},
	"jupiter":     {EquityValue: 1_200_000_000, Revenue: 90_000_000, Fees: 140_000_000},
}

func seedMockMetrics(ctx context.Context, snapshots storage.SnapshotStore) error {
	now := time.Now().UTC()

	for entityID, data := range mockData {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal mock data for %s: %w", entityID, err)
		}

		snapshotID, err := snapshots.InsertSnapshot(ctx, entityID, now, "mock", string(raw))
		if err != nil {
			return fmt.Errorf("insert mock snapshot for %s: %w", entityID, err)
		}

		ev, rev, fees := data.EquityValue, data.Revenue, data.Fees
		set := domain.MetricSet{
			EquityValue: &ev,
			Revenue:     &rev,
			Fees:        &fees,
			PERatio:     normalize.SafeRatio(&ev, &rev),
			PSRatio:     normalize.SafeRatio(&ev, &fees),
		}
		if err := snapshots.InsertMetrics(ctx, snapshotID, set.Values()); err != nil {
			return fmt.Errorf("insert mock metrics for %s: %w", entityID, err)
		}
	}
	return nil
}
