package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"defi-parity/internal/domain"
	"defi-parity/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertSnapshot records a new snapshot row and returns its generated id.
// Snapshots are append-only; every call produces a fresh row.
func (s *SnapshotStore) InsertSnapshot(ctx context.Context, entityID string, capturedAt time.Time, source, rawJSON string) (string, error) {
	if entityID == "" || source == "" {
		return "", storage.ErrInvalidInput
	}

	id := uuid.NewString()
	query := `
		INSERT INTO snapshots (id, entity_id, captured_at, source, raw_json)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`

	if _, err := s.pool.Exec(ctx, query, id, entityID, capturedAt.UTC(), source, rawJSON); err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// InsertMetrics writes the metric rows belonging to a snapshot in a single
// transaction. A duplicate metric type for the same snapshot returns
// ErrDuplicateKey and rolls the batch back.
func (s *SnapshotStore) InsertMetrics(ctx context.Context, snapshotID string, values []domain.MetricValue) error {
	if snapshotID == "" {
		return storage.ErrInvalidInput
	}
	if len(values) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO metrics (id, snapshot_id, metric_type, value)
		VALUES ($1, $2, $3, $4)
	`

	for _, v := range values {
		if !v.Type.Valid() {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, query, uuid.NewString(), snapshotID, string(v.Type), v.Value); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert metric %s: %w", v.Type, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetLatestSnapshot returns the most recent snapshot for an entity.
func (s *SnapshotStore) GetLatestSnapshot(ctx context.Context, entityID string) (*domain.Snapshot, error) {
	query := `
		SELECT id, entity_id, captured_at, source, COALESCE(raw_json, ''), created_at
		FROM snapshots
		WHERE entity_id = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`

	var snap domain.Snapshot
	err := s.pool.QueryRow(ctx, query, entityID).Scan(
		&snap.ID, &snap.EntityID, &snap.CapturedAt, &snap.Source, &snap.RawJSON, &snap.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return &snap, nil
}

// GetLatestMetrics returns the joined metric set from the entity's most
// recent snapshot that carries at least one metric row. Snapshots with no
// metrics are skipped so a failed fetch never shadows older data.
func (s *SnapshotStore) GetLatestMetrics(ctx context.Context, entityID string) (*domain.EntityMetrics, error) {
	query := `
		SELECT e.id, e.name, e.type, e.category, s.captured_at,
			MAX(CASE WHEN m.metric_type = 'equity_value' THEN m.value END),
			MAX(CASE WHEN m.metric_type = 'revenue' THEN m.value END),
			MAX(CASE WHEN m.metric_type = 'fees' THEN m.value END),
			MAX(CASE WHEN m.metric_type = 'pe_ratio' THEN m.value END),
			MAX(CASE WHEN m.metric_type = 'ps_ratio' THEN m.value END)
		FROM snapshots s
		JOIN entities e ON e.id = s.entity_id
		JOIN metrics m ON m.snapshot_id = s.id
		WHERE s.id = (
			SELECT s2.id
			FROM snapshots s2
			JOIN metrics m2 ON m2.snapshot_id = s2.id
			WHERE s2.entity_id = $1
			GROUP BY s2.id, s2.captured_at
			ORDER BY s2.captured_at DESC
			LIMIT 1
		)
		GROUP BY e.id, e.name, e.type, e.category, s.captured_at
	`

	var em domain.EntityMetrics
	err := s.pool.QueryRow(ctx, query, entityID).Scan(
		&em.EntityID, &em.Name, &em.Type, &em.Category, &em.CapturedAt,
		&em.EquityValue, &em.Revenue, &em.Fees, &em.PERatio, &em.PSRatio,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest metrics: %w", err)
	}
	return &em, nil
}

// GetHistoricalMetrics returns up to limit most recent non-null values of a
// single metric for an entity, ordered oldest first.
func (s *SnapshotStore) GetHistoricalMetrics(ctx context.Context, entityID string, metricType domain.MetricType, limit int) ([]domain.HistoricalDataPoint, error) {
	if !metricType.Valid() || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT to_char(s.captured_at, 'YYYY-MM-DD'), m.value
		FROM metrics m
		JOIN snapshots s ON s.id = m.snapshot_id
		WHERE s.entity_id = $1 AND m.metric_type = $2 AND m.value IS NOT NULL
		ORDER BY s.captured_at DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, entityID, string(metricType), limit)
	if err != nil {
		return nil, fmt.Errorf("get historical metrics: %w", err)
	}
	defer rows.Close()

	var points []domain.HistoricalDataPoint
	for rows.Next() {
		var p domain.HistoricalDataPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}

	// Query fetched newest-first to honor the limit; callers expect
	// ascending order for charting.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// GetLastUpdateTime returns the latest captured_at across all snapshots, or
// nil when the store is empty.
func (s *SnapshotStore) GetLastUpdateTime(ctx context.Context) (*time.Time, error) {
	query := `SELECT MAX(captured_at) FROM snapshots`

	var ts *time.Time
	if err := s.pool.QueryRow(ctx, query).Scan(&ts); err != nil {
		return nil, fmt.Errorf("get last update time: %w", err)
	}
	return ts, nil
}
