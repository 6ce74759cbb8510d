// Package memory provides an in-memory storage implementation for local
// development and tests. Data is lost on process exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"defi-parity/internal/domain"
	"defi-parity/internal/storage"
)

// Store is an in-memory implementation of both storage.CatalogStore and
// storage.SnapshotStore. A single struct backs both so snapshot queries can
// consult the catalog without a cross-store dependency.
type Store struct {
	mu        sync.RWMutex
	entities  map[string]*domain.Entity
	pairs     map[int]*domain.Pair
	snapshots []*snapshotRecord
}

type snapshotRecord struct {
	id         string
	entityID   string
	capturedAt time.Time
	source     string
	rawJSON    string
	createdAt  time.Time
	metrics    map[domain.MetricType]*float64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		entities: make(map[string]*domain.Entity),
		pairs:    make(map[int]*domain.Pair),
	}
}

// Compile-time interface checks.
var (
	_ storage.CatalogStore  = (*Store)(nil)
	_ storage.SnapshotStore = (*Store)(nil)
)

// UpsertEntity inserts or replaces an entity.
func (s *Store) UpsertEntity(_ context.Context, e *domain.Entity) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.entities[e.ID] = &cp
	return nil
}

// GetEntity retrieves an entity by slug.
func (s *Store) GetEntity(_ context.Context, id string) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *e
	return &cp, nil
}

// UpsertPair inserts or replaces a pair.
func (s *Store) UpsertPair(_ context.Context, p *domain.Pair) error {
	if p == nil || p.ID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.pairs[p.ID] = &cp
	return nil
}

// GetAllPairs returns all pairs ordered by id.
func (s *Store) GetAllPairs(_ context.Context) ([]*domain.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]*domain.Pair, 0, len(s.pairs))
	for _, p := range s.pairs {
		cp := *p
		pairs = append(pairs, &cp)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })
	return pairs, nil
}

// InsertSnapshot appends a new snapshot record and returns its id.
func (s *Store) InsertSnapshot(_ context.Context, entityID string, capturedAt time.Time, source, rawJSON string) (string, error) {
	if entityID == "" || source == "" {
		return "", storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[entityID]; !ok {
		return "", storage.ErrNotFound
	}

	rec := &snapshotRecord{
		id:         uuid.NewString(),
		entityID:   entityID,
		capturedAt: capturedAt.UTC(),
		source:     source,
		rawJSON:    rawJSON,
		createdAt:  time.Now().UTC(),
		metrics:    make(map[domain.MetricType]*float64),
	}
	s.snapshots = append(s.snapshots, rec)
	return rec.id, nil
}

// InsertMetrics attaches metric values to an existing snapshot. The batch is
// validated up front so a duplicate leaves the snapshot untouched.
func (s *Store) InsertMetrics(_ context.Context, snapshotID string, values []domain.MetricValue) error {
	if snapshotID == "" {
		return storage.ErrInvalidInput
	}
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findSnapshot(snapshotID)
	if rec == nil {
		return storage.ErrNotFound
	}

	seen := make(map[domain.MetricType]bool, len(values))
	for _, v := range values {
		if !v.Type.Valid() {
			return storage.ErrInvalidInput
		}
		if _, exists := rec.metrics[v.Type]; exists || seen[v.Type] {
			return storage.ErrDuplicateKey
		}
		seen[v.Type] = true
	}

	for _, v := range values {
		if v.Value != nil {
			val := *v.Value
			rec.metrics[v.Type] = &val
		} else {
			rec.metrics[v.Type] = nil
		}
	}
	return nil
}

// GetLatestSnapshot returns the most recent snapshot for an entity.
func (s *Store) GetLatestSnapshot(_ context.Context, entityID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.latestSnapshot(entityID, false)
	if rec == nil {
		return nil, storage.ErrNotFound
	}

	return &domain.Snapshot{
		ID:         rec.id,
		EntityID:   rec.entityID,
		CapturedAt: rec.capturedAt,
		Source:     rec.source,
		RawJSON:    rec.rawJSON,
		CreatedAt:  rec.createdAt,
	}, nil
}

// GetLatestMetrics returns the joined metric set of the entity's most recent
// snapshot that has at least one metric attached.
func (s *Store) GetLatestMetrics(_ context.Context, entityID string) (*domain.EntityMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.latestSnapshot(entityID, true)
	if rec == nil {
		return nil, storage.ErrNotFound
	}
	e, ok := s.entities[entityID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	em := domain.EntityMetrics{
		EntityID:   e.ID,
		Name:       e.Name,
		Type:       e.Type,
		Category:   e.Category,
		CapturedAt: rec.capturedAt,
	}
	assign := func(dst **float64, t domain.MetricType) {
		if v, ok := rec.metrics[t]; ok && v != nil {
			val := *v
			*dst = &val
		}
	}
	assign(&em.EquityValue, domain.MetricEquityValue)
	assign(&em.Revenue, domain.MetricRevenue)
	assign(&em.Fees, domain.MetricFees)
	assign(&em.PERatio, domain.MetricPERatio)
	assign(&em.PSRatio, domain.MetricPSRatio)
	return &em, nil
}

// GetHistoricalMetrics returns up to limit most recent non-null values of a
// metric for an entity, oldest first.
func (s *Store) GetHistoricalMetrics(_ context.Context, entityID string, metricType domain.MetricType, limit int) ([]domain.HistoricalDataPoint, error) {
	if !metricType.Valid() || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*snapshotRecord
	for _, rec := range s.snapshots {
		if rec.entityID != entityID {
			continue
		}
		if v, ok := rec.metrics[metricType]; !ok || v == nil {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].capturedAt.After(recs[j].capturedAt) })
	if len(recs) > limit {
		recs = recs[:limit]
	}

	points := make([]domain.HistoricalDataPoint, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		points = append(points, domain.HistoricalDataPoint{
			Date:  rec.capturedAt.Format("2006-01-02"),
			Value: *rec.metrics[metricType],
		})
	}
	if len(points) == 0 {
		return nil, nil
	}
	return points, nil
}

// GetLastUpdateTime returns the latest captured_at across all snapshots, or
// nil when the store holds none.
func (s *Store) GetLastUpdateTime(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *time.Time
	for _, rec := range s.snapshots {
		if latest == nil || rec.capturedAt.After(*latest) {
			ts := rec.capturedAt
			latest = &ts
		}
	}
	return latest, nil
}

func (s *Store) findSnapshot(id string) *snapshotRecord {
	for _, rec := range s.snapshots {
		if rec.id == id {
			return rec
		}
	}
	return nil
}

func (s *Store) latestSnapshot(entityID string, requireMetrics bool) *snapshotRecord {
	var latest *snapshotRecord
	for _, rec := range s.snapshots {
		if rec.entityID != entityID {
			continue
		}
		if requireMetrics && len(rec.metrics) == 0 {
			continue
		}
		if latest == nil || rec.capturedAt.After(latest.capturedAt) {
			latest = rec
		}
	}
	return latest
}
