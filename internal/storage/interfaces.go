// Package storage defines the persistence interfaces for the catalog and the
// append-only snapshot store, with PostgreSQL and in-memory implementations
// in subpackages.
package storage

import (
	"context"
	"time"

	"defi-parity/internal/domain"
)

// CatalogStore provides access to entities and pairs storage. Upserts are
// idempotent with last-write-wins semantics on the primary id.
type CatalogStore interface {
	// UpsertEntity inserts or updates an entity keyed by its slug.
	UpsertEntity(ctx context.Context, e *domain.Entity) error

	// GetEntity retrieves an entity by slug. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, id string) (*domain.Entity, error)

	// UpsertPair inserts or updates a pair keyed by its integer id.
	UpsertPair(ctx context.Context, p *domain.Pair) error

	// GetAllPairs retrieves all pairs ordered by id.
	GetAllPairs(ctx context.Context) ([]*domain.Pair, error)
}

// SnapshotStore provides append-only access to snapshots and their metrics.
// Snapshots are immutable once inserted; "latest" is always decided by
// captured_at comparison, never by insertion order.
type SnapshotStore interface {
	// InsertSnapshot records a new capture and returns its generated id.
	// Every call creates a fresh historical row; there are no upsert
	// semantics. The entity must exist.
	InsertSnapshot(ctx context.Context, entityID string, capturedAt time.Time, source, rawJSON string) (string, error)

	// InsertMetrics writes one row per metric value for a snapshot. Partial
	// lists are tolerated and simply leave gaps at read time. Returns
	// ErrDuplicateKey when a (snapshot, type) row already exists.
	InsertMetrics(ctx context.Context, snapshotID string, values []domain.MetricValue) error

	// GetLatestSnapshot retrieves the snapshot with the maximum captured_at
	// for an entity. Returns ErrNotFound if the entity has no snapshots.
	GetLatestSnapshot(ctx context.Context, entityID string) (*domain.Snapshot, error)

	// GetLatestMetrics retrieves the fully-joined metric set of the latest
	// snapshot. Returns ErrNotFound when no snapshot with at least one
	// metric row exists for the entity.
	GetLatestMetrics(ctx context.Context, entityID string) (*domain.EntityMetrics, error)

	// GetHistoricalMetrics retrieves up to limit most recent non-null values
	// for one metric type, returned in chronologically ascending order.
	GetHistoricalMetrics(ctx context.Context, entityID string, metricType domain.MetricType, limit int) ([]domain.HistoricalDataPoint, error)

	// GetLastUpdateTime returns the maximum captured_at across all
	// snapshots, or nil when none exist.
	GetLastUpdateTime(ctx context.Context) (*time.Time, error)
}
