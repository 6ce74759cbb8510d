package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-parity/internal/domain"
	"defi-parity/internal/storage"
)

func f(v float64) *float64 { return &v }

func seedEntity(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.UpsertEntity(context.Background(), &domain.Entity{
		ID:       id,
		Name:     id,
		Type:     domain.EntityTypeDeFi,
		Category: "Lending",

		CoinGeckoID: id,
	})
	require.NoError(t, err)
}

func TestUpsertEntity_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := New()

	e := &domain.Entity{ID: "aave", Name: "Aave", Type: domain.EntityTypeDeFi, Category: "Lending", CoinGeckoID: "aave"}
	require.NoError(t, store.UpsertEntity(ctx, e))

	e.Name = "Aave v3"
	require.NoError(t, store.UpsertEntity(ctx, e))

	got, err := store.GetEntity(ctx, "aave")
	require.NoError(t, err)
	assert.Equal(t, "Aave v3", got.Name)
}

func TestGetEntity_NotFound(t *testing.T) {
	store := New()
	_, err := store.GetEntity(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetAllPairs_Ordered(t *testing.T) {
	ctx := context.Background()
	store := New()

	for _, id := range []int{3, 1, 2} {
		require.NoError(t, store.UpsertPair(ctx, &domain.Pair{ID: id, Theme: "t", TradFiID: "a", DeFiID: "b"}))
	}

	pairs, err := store.GetAllPairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	for i, p := range pairs {
		assert.Equal(t, i+1, p.ID)
	}
}

func TestInsertSnapshot_RequiresEntity(t *testing.T) {
	store := New()
	_, err := store.InsertSnapshot(context.Background(), "ghost", time.Now(), "mock", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMetricsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedEntity(t, store, "uniswap")

	id, err := store.InsertSnapshot(ctx, "uniswap", time.Now(), "coingecko+defillama", `{"k":1}`)
	require.NoError(t, err)

	set := domain.MetricSet{EquityValue: f(8.5e9), Fees: f(1.2e9), PSRatio: f(8.5 / 1.2)}
	require.NoError(t, store.InsertMetrics(ctx, id, set.Values()))

	got, err := store.GetLatestMetrics(ctx, "uniswap")
	require.NoError(t, err)

	require.NotNil(t, got.EquityValue)
	assert.InDelta(t, 8.5e9, *got.EquityValue, 1)
	assert.Nil(t, got.Revenue, "null metric stays null on read")
	assert.Nil(t, got.PERatio)
	require.NotNil(t, got.PSRatio)
	assert.Equal(t, "uniswap", got.EntityID)
	assert.Equal(t, domain.EntityTypeDeFi, got.Type)
}

func TestInsertMetrics_DuplicateType(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedEntity(t, store, "aave")

	id, err := store.InsertSnapshot(ctx, "aave", time.Now(), "mock", "")
	require.NoError(t, err)

	require.NoError(t, store.InsertMetrics(ctx, id, []domain.MetricValue{{Type: domain.MetricFees, Value: f(1)}}))
	err = store.InsertMetrics(ctx, id, []domain.MetricValue{{Type: domain.MetricFees, Value: f(2)}})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestGetLatestMetrics_PicksMaxCapturedAt(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedEntity(t, store, "lido")

	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 0, 7)

	// Inserted out of order on purpose.
	id2, err := store.InsertSnapshot(ctx, "lido", newer, "mock", "")
	require.NoError(t, err)
	require.NoError(t, store.InsertMetrics(ctx, id2, []domain.MetricValue{{Type: domain.MetricFees, Value: f(200)}}))

	id1, err := store.InsertSnapshot(ctx, "lido", older, "mock", "")
	require.NoError(t, err)
	require.NoError(t, store.InsertMetrics(ctx, id1, []domain.MetricValue{{Type: domain.MetricFees, Value: f(100)}}))

	got, err := store.GetLatestMetrics(ctx, "lido")
	require.NoError(t, err)
	require.NotNil(t, got.Fees)
	assert.InDelta(t, 200, *got.Fees, 1e-9)
	assert.True(t, got.CapturedAt.Equal(newer))
}

func TestGetLatestMetrics_SkipsMetriclessSnapshots(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedEntity(t, store, "gmx")

	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	id, err := store.InsertSnapshot(ctx, "gmx", older, "mock", "")
	require.NoError(t, err)
	require.NoError(t, store.InsertMetrics(ctx, id, []domain.MetricValue{{Type: domain.MetricFees, Value: f(42)}}))

	// A later snapshot whose metric insert never happened (failed fetch).
	_, err = store.InsertSnapshot(ctx, "gmx", older.AddDate(0, 0, 7), "mock", "")
	require.NoError(t, err)

	got, err := store.GetLatestMetrics(ctx, "gmx")
	require.NoError(t, err)
	require.NotNil(t, got.Fees)
	assert.InDelta(t, 42, *got.Fees, 1e-9)
}

func TestGetLatestMetrics_NotFound(t *testing.T) {
	store := New()
	seedEntity(t, store, "curve")

	_, err := store.GetLatestMetrics(context.Background(), "curve")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetHistoricalMetrics(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedEntity(t, store, "pendle")

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for week := 0; week < 5; week++ {
		id, err := store.InsertSnapshot(ctx, "pendle", base.AddDate(0, 0, 7*week), "mock", "")
		require.NoError(t, err)

		values := []domain.MetricValue{{Type: domain.MetricPERatio, Value: f(float64(10 + week))}}
		if week == 2 {
			// A null sample must be skipped, not returned as zero.
			values = []domain.MetricValue{{Type: domain.MetricPERatio, Value: nil}}
		}
		require.NoError(t, store.InsertMetrics(ctx, id, values))
	}

	points, err := store.GetHistoricalMetrics(ctx, "pendle", domain.MetricPERatio, 10)
	require.NoError(t, err)
	require.Len(t, points, 4)

	assert.Equal(t, "2026-06-01", points[0].Date)
	assert.InDelta(t, 10, points[0].Value, 1e-9)
	assert.InDelta(t, 14, points[3].Value, 1e-9)
	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i-1].Date, points[i].Date)
	}
}

func TestGetHistoricalMetrics_LimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedEntity(t, store, "jupiter")

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for week := 0; week < 6; week++ {
		id, err := store.InsertSnapshot(ctx, "jupiter", base.AddDate(0, 0, 7*week), "mock", "")
		require.NoError(t, err)
		require.NoError(t, store.InsertMetrics(ctx, id, []domain.MetricValue{{Type: domain.MetricFees, Value: f(float64(week))}}))
	}

	points, err := store.GetHistoricalMetrics(ctx, "jupiter", domain.MetricFees, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)

	// The newest three, still ascending.
	assert.InDelta(t, 3, points[0].Value, 1e-9)
	assert.InDelta(t, 5, points[2].Value, 1e-9)
}

func TestGetHistoricalMetrics_InvalidInput(t *testing.T) {
	store := New()
	_, err := store.GetHistoricalMetrics(context.Background(), "x", "bogus", 10)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.GetHistoricalMetrics(context.Background(), "x", domain.MetricFees, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestGetLastUpdateTime(t *testing.T) {
	ctx := context.Background()
	store := New()

	ts, err := store.GetLastUpdateTime(ctx)
	require.NoError(t, err)
	assert.Nil(t, ts, "empty store has no update time")

	seedEntity(t, store, "ondo")
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 0, 7)
	_, err = store.InsertSnapshot(ctx, "ondo", newer, "mock", "")
	require.NoError(t, err)
	_, err = store.InsertSnapshot(ctx, "ondo", older, "mock", "")
	require.NoError(t, err)

	ts, err = store.GetLastUpdateTime(ctx)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(newer))
}
