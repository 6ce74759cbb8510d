// Package aggregate builds read-side views over the catalog and the
// snapshot store: pair comparisons, single-metric history, and combined
// pair history with a derived P/E spread series.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"defi-parity/internal/catalog"
	"defi-parity/internal/domain"
	"defi-parity/internal/normalize"
	"defi-parity/internal/storage"
)

const (
	// DefaultHistoryLimit is the number of data points returned when the
	// caller does not specify a limit (roughly one year of weekly samples).
	DefaultHistoryLimit = 52

	// MaxHistoryLimit caps history reads (roughly five years of weekly
	// samples).
	MaxHistoryLimit = 260
)

// Aggregator assembles comparison and history views. It is read-only and
// safe for concurrent use.
type Aggregator struct {
	snapshots storage.SnapshotStore
}

// New creates an Aggregator over the given snapshot store.
func New(snapshots storage.SnapshotStore) *Aggregator {
	return &Aggregator{snapshots: snapshots}
}

// AllPairComparisons returns one comparison per catalog pair where BOTH
// sides have latest metrics. Pairs with either side missing are omitted
// rather than returned half-empty. Results are ordered by pair id.
func (a *Aggregator) AllPairComparisons(ctx context.Context) ([]domain.PairComparison, error) {
	comparisons := make([]domain.PairComparison, 0, len(catalog.Pairs()))
	for _, pair := range catalog.Pairs() {
		tradfi, err := a.snapshots.GetLatestMetrics(ctx, pair.TradFi.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("latest metrics for %s: %w", pair.TradFi.ID, err)
		}
		defi, err := a.snapshots.GetLatestMetrics(ctx, pair.DeFi.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("latest metrics for %s: %w", pair.DeFi.ID, err)
		}

		comparisons = append(comparisons, domain.PairComparison{
			PairID:   pair.ID,
			Theme:    pair.Theme,
			TradFi:   *tradfi,
			DeFi:     *defi,
			PESpread: normalize.Spread(defi.PERatio, tradfi.PERatio),
			PSSpread: normalize.Spread(defi.PSRatio, tradfi.PSRatio),
		})
	}
	return comparisons, nil
}

// PairMetrics returns the latest-metrics view of the catalog pairs, ordered
// by pair id. Every requested pair is present; a side without any snapshot
// metrics yet is nil rather than dropping the pair. A pairID of zero means
// all pairs; an unknown pairID returns ErrNotFound.
func (a *Aggregator) PairMetrics(ctx context.Context, pairID int) ([]domain.PairMetrics, error) {
	selected := catalog.Pairs()
	if pairID != 0 {
		pair, ok := catalog.PairByID(pairID)
		if !ok {
			return nil, storage.ErrNotFound
		}
		selected = []catalog.Pair{pair}
	}

	latest := func(entityID string) (*domain.EntityMetrics, error) {
		em, err := a.snapshots.GetLatestMetrics(ctx, entityID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("latest metrics for %s: %w", entityID, err)
		}
		return em, nil
	}

	out := make([]domain.PairMetrics, 0, len(selected))
	for _, pair := range selected {
		tradfi, err := latest(pair.TradFi.ID)
		if err != nil {
			return nil, err
		}
		defi, err := latest(pair.DeFi.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PairMetrics{
			PairID: pair.ID,
			Theme:  pair.Theme,
			TradFi: tradfi,
			DeFi:   defi,
		})
	}
	return out, nil
}

// FilterByCategory returns the comparisons whose TradFi or DeFi side
// matches the category, compared case-insensitively.
func FilterByCategory(comparisons []domain.PairComparison, category string) []domain.PairComparison {
	if category == "" {
		return comparisons
	}

	filtered := make([]domain.PairComparison, 0, len(comparisons))
	for _, c := range comparisons {
		if strings.EqualFold(c.TradFi.Category, category) || strings.EqualFold(c.DeFi.Category, category) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// HistoricalSeries returns up to limit most recent non-null values for one
// entity and metric, ascending by date. A non-positive limit falls back to
// the default; anything above the cap is clamped.
func (a *Aggregator) HistoricalSeries(ctx context.Context, entityID string, metricType domain.MetricType, limit int) (*domain.HistoricalSeries, error) {
	if _, ok := catalog.EntityByID(entityID); !ok {
		return nil, storage.ErrNotFound
	}
	if !metricType.Valid() {
		return nil, storage.ErrInvalidInput
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	points, err := a.snapshots.GetHistoricalMetrics(ctx, entityID, metricType, limit)
	if err != nil {
		return nil, fmt.Errorf("historical metrics for %s/%s: %w", entityID, metricType, err)
	}

	return &domain.HistoricalSeries{
		EntityID:   entityID,
		MetricType: metricType,
		Data:       points,
	}, nil
}

// PairHistoricalData returns both sides' P/E and equity-value histories for
// one pair, plus a pointwise P/E spread series. The spread is defined only
// on dates where both sides have a value; dates present on one side only
// are skipped.
func (a *Aggregator) PairHistoricalData(ctx context.Context, pairID, limit int) (*domain.PairHistoricalData, error) {
	pair, ok := catalog.PairByID(pairID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	fetch := func(entityID string, t domain.MetricType) ([]domain.HistoricalDataPoint, error) {
		points, err := a.snapshots.GetHistoricalMetrics(ctx, entityID, t, limit)
		if err != nil {
			return nil, fmt.Errorf("historical metrics for %s/%s: %w", entityID, t, err)
		}
		return points, nil
	}

	tradfiPE, err := fetch(pair.TradFi.ID, domain.MetricPERatio)
	if err != nil {
		return nil, err
	}
	defiPE, err := fetch(pair.DeFi.ID, domain.MetricPERatio)
	if err != nil {
		return nil, err
	}
	tradfiEquity, err := fetch(pair.TradFi.ID, domain.MetricEquityValue)
	if err != nil {
		return nil, err
	}
	defiEquity, err := fetch(pair.DeFi.ID, domain.MetricEquityValue)
	if err != nil {
		return nil, err
	}

	return &domain.PairHistoricalData{
		PairID:        pair.ID,
		Theme:         pair.Theme,
		TradFiName:    pair.TradFi.Name,
		DeFiName:      pair.DeFi.Name,
		TradFiPE:      tradfiPE,
		DeFiPE:        defiPE,
		TradFiEquity:  tradfiEquity,
		DeFiEquity:    defiEquity,
		SpreadHistory: spreadSeries(defiPE, tradfiPE),
	}, nil
}

// LastUpdated returns the most recent snapshot time across all entities, or
// nil when nothing has been fetched yet.
func (a *Aggregator) LastUpdated(ctx context.Context) (*time.Time, error) {
	ts, err := a.snapshots.GetLastUpdateTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("last update time: %w", err)
	}
	return ts, nil
}

// spreadSeries computes defi minus tradfi per date, keeping only dates
// where both series have a value. Output order follows the defi series,
// which is already ascending.
func spreadSeries(defi, tradfi []domain.HistoricalDataPoint) []domain.HistoricalDataPoint {
	byDate := make(map[string]float64, len(tradfi))
	for _, p := range tradfi {
		byDate[p.Date] = p.Value
	}

	spread := make([]domain.HistoricalDataPoint, 0, len(defi))
	for _, p := range defi {
		tv, ok := byDate[p.Date]
		if !ok {
			continue
		}
		spread = append(spread, domain.HistoricalDataPoint{Date: p.Date, Value: p.Value - tv})
	}
	return spread
}
