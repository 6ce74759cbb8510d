package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-parity/internal/domain"
	"defi-parity/internal/storage"
)

func seedTestEntity(t *testing.T, pool *Pool, id string, entityType domain.EntityType) {
	t.Helper()

	e := &domain.Entity{ID: id, Name: id, Type: entityType, Category: "Exchange"}
	if entityType == domain.EntityTypeTradFi {
		e.Ticker = "TICK"
	} else {
		e.CoinGeckoID = id
	}
	require.NoError(t, NewCatalogStore(pool).UpsertEntity(context.Background(), e))
}

func TestSnapshotStore_InsertAndGetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	seedTestEntity(t, pool, "uniswap", domain.EntityTypeDeFi)

	capturedAt := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	id, err := store.InsertSnapshot(ctx, "uniswap", capturedAt, "coingecko+defillama", `{"fdv":8500000000}`)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := store.GetLatestSnapshot(ctx, "uniswap")
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, "uniswap", snap.EntityID)
	assert.Equal(t, "coingecko+defillama", snap.Source)
	assert.True(t, snap.CapturedAt.Equal(capturedAt))
	assert.JSONEq(t, `{"fdv":8500000000}`, snap.RawJSON)
	assert.NotZero(t, snap.CreatedAt)
}

func TestSnapshotStore_AppendOnly(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	seedTestEntity(t, pool, "aave", domain.EntityTypeDeFi)

	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	id1, err := store.InsertSnapshot(ctx, "aave", at, "mock", "")
	require.NoError(t, err)
	id2, err := store.InsertSnapshot(ctx, "aave", at, "mock", "")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2, "same entity and time must still produce distinct rows")
}

func TestSnapshotStore_InsertSnapshotUnknownEntity(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)

	_, err := store.InsertSnapshot(context.Background(), "ghost", time.Now(), "mock", "")
	assert.Error(t, err, "foreign key must reject snapshots for unknown entities")
}

func TestSnapshotStore_MetricsRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	seedTestEntity(t, pool, "gmx", domain.EntityTypeDeFi)

	id, err := store.InsertSnapshot(ctx, "gmx", time.Now().UTC(), "coingecko+defillama", "")
	require.NoError(t, err)

	set := domain.MetricSet{
		EquityValue: ptr(4.5e8),
		Fees:        ptr(1.2e8),
		Revenue:     ptr(3.0e7),
		PERatio:     ptr(15.0),
	}
	require.NoError(t, store.InsertMetrics(ctx, id, set.Values()))

	got, err := store.GetLatestMetrics(ctx, "gmx")
	require.NoError(t, err)

	assert.Equal(t, "gmx", got.EntityID)
	assert.Equal(t, domain.EntityTypeDeFi, got.Type)
	require.NotNil(t, got.EquityValue)
	assert.InDelta(t, 4.5e8, *got.EquityValue, 1)
	require.NotNil(t, got.PERatio)
	assert.InDelta(t, 15.0, *got.PERatio, 1e-9)
	assert.Nil(t, got.PSRatio, "null metric rows stay nil on read")
}

func TestSnapshotStore_InsertMetricsDuplicateType(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	seedTestEntity(t, pool, "lido", domain.EntityTypeDeFi)

	id, err := store.InsertSnapshot(ctx, "lido", time.Now().UTC(), "mock", "")
	require.NoError(t, err)

	values := []domain.MetricValue{{Type: domain.MetricFees, Value: ptr(1.5e8)}}
	require.NoError(t, store.InsertMetrics(ctx, id, values))

	err = store.InsertMetrics(ctx, id, values)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSnapshotStore_GetLatestMetricsPicksMaxCapturedAt(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	seedTestEntity(t, pool, "nasdaq", domain.EntityTypeTradFi)

	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 0, 7)

	// Newer snapshot inserted first; captured_at decides, not insert order.
	id2, err := store.InsertSnapshot(ctx, "nasdaq", newer, "fmp", "")
	require.NoError(t, err)
	require.NoError(t, store.InsertMetrics(ctx, id2, []domain.MetricValue{{Type: domain.MetricPERatio, Value: ptr(38.0)}}))

	id1, err := store.InsertSnapshot(ctx, "nasdaq", older, "fmp", "")
	require.NoError(t, err)
	require.NoError(t, store.InsertMetrics(ctx, id1, []domain.MetricValue{{Type: domain.MetricPERatio, Value: ptr(40.0)}}))

	got, err := store.GetLatestMetrics(ctx, "nasdaq")
	require.NoError(t, err)
	require.NotNil(t, got.PERatio)
	assert.InDelta(t, 38.0, *got.PERatio, 1e-9)
	assert.True(t, got.CapturedAt.Equal(newer))
}

func TestSnapshotStore_GetLatestMetricsSkipsEmptySnapshots(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	seedTestEntity(t, pool, "curve", domain.EntityTypeDeFi)

	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	id, err := store.InsertSnapshot(ctx, "curve", older, "mock", "")
	require.NoError(t, err)
	require.NoError(t, store.InsertMetrics(ctx, id, []domain.MetricValue{{Type: domain.MetricFees, Value: ptr(4.5e7)}}))

	// A later snapshot with no metric rows (failed fetch) must not shadow it.
	_, err = store.InsertSnapshot(ctx, "curve", older.AddDate(0, 0, 7), "mock", "")
	require.NoError(t, err)

	got, err := store.GetLatestMetrics(ctx, "curve")
	require.NoError(t, err)
	require.NotNil(t, got.Fees)
	assert.InDelta(t, 4.5e7, *got.Fees, 1)
}

func TestSnapshotStore_GetLatestMetricsNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	seedTestEntity(t, pool, "ondo", domain.EntityTypeDeFi)

	_, err := store.GetLatestMetrics(context.Background(), "ondo")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotStore_GetHistoricalMetrics(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	seedTestEntity(t, pool, "pendle", domain.EntityTypeDeFi)

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for week := 0; week < 5; week++ {
		id, err := store.InsertSnapshot(ctx, "pendle", base.AddDate(0, 0, 7*week), "mock", "")
		require.NoError(t, err)

		value := ptr(float64(10 + week))
		if week == 2 {
			value = nil // null sample must be skipped on read
		}
		require.NoError(t, store.InsertMetrics(ctx, id, []domain.MetricValue{{Type: domain.MetricPERatio, Value: value}}))
	}

	points, err := store.GetHistoricalMetrics(ctx, "pendle", domain.MetricPERatio, 52)
	require.NoError(t, err)
	require.Len(t, points, 4)

	assert.Equal(t, "2026-06-01", points[0].Date)
	assert.InDelta(t, 10, points[0].Value, 1e-9)
	assert.InDelta(t, 14, points[3].Value, 1e-9)

	// Limit keeps the newest samples, still ascending.
	points, err = store.GetHistoricalMetrics(ctx, "pendle", domain.MetricPERatio, 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 13, points[0].Value, 1e-9)
	assert.InDelta(t, 14, points[1].Value, 1e-9)
}

func TestSnapshotStore_GetLastUpdateTime(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()

	ts, err := store.GetLastUpdateTime(ctx)
	require.NoError(t, err)
	assert.Nil(t, ts, "empty store has no update time")

	seedTestEntity(t, pool, "jupiter", domain.EntityTypeDeFi)
	newest := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	_, err = store.InsertSnapshot(ctx, "jupiter", newest.AddDate(0, 0, -7), "mock", "")
	require.NoError(t, err)
	_, err = store.InsertSnapshot(ctx, "jupiter", newest, "mock", "")
	require.NoError(t, err)

	ts, err = store.GetLastUpdateTime(ctx)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(newest))
}
