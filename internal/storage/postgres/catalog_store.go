package postgres

import (
	"context"
	"fmt"

	"defi-parity/internal/domain"
	"defi-parity/internal/storage"
)

// CatalogStore implements storage.CatalogStore using PostgreSQL.
type CatalogStore struct {
	pool *Pool
}

// NewCatalogStore creates a new CatalogStore.
func NewCatalogStore(pool *Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CatalogStore = (*CatalogStore)(nil)

// UpsertEntity inserts or updates an entity keyed by its slug.
func (s *CatalogStore) UpsertEntity(ctx context.Context, e *domain.Entity) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO entities (id, name, type, category, ticker, coingecko_id, defillama_id, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), now())
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			category = excluded.category,
			ticker = excluded.ticker,
			coingecko_id = excluded.coingecko_id,
			defillama_id = excluded.defillama_id,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query, e.ID, e.Name, string(e.Type), e.Category, e.Ticker, e.CoinGeckoID, e.DefiLlamaID)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by slug. Returns ErrNotFound if absent.
func (s *CatalogStore) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	query := `
		SELECT id, name, type, category,
		       COALESCE(ticker, ''), COALESCE(coingecko_id, ''), COALESCE(defillama_id, '')
		FROM entities
		WHERE id = $1
	`

	var e domain.Entity
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.Type, &e.Category, &e.Ticker, &e.CoinGeckoID, &e.DefiLlamaID,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return &e, nil
}

// UpsertPair inserts or updates a pair keyed by its integer id.
func (s *CatalogStore) UpsertPair(ctx context.Context, p *domain.Pair) error {
	if p == nil || p.ID == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pairs (id, theme, tradfi_id, defi_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			theme = excluded.theme,
			tradfi_id = excluded.tradfi_id,
			defi_id = excluded.defi_id,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query, p.ID, p.Theme, p.TradFiID, p.DeFiID)
	if err != nil {
		return fmt.Errorf("upsert pair: %w", err)
	}
	return nil
}

// GetAllPairs retrieves all pairs ordered by id.
func (s *CatalogStore) GetAllPairs(ctx context.Context) ([]*domain.Pair, error) {
	query := `
		SELECT id, theme, tradfi_id, defi_id
		FROM pairs
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all pairs: %w", err)
	}
	defer rows.Close()

	var pairs []*domain.Pair
	for rows.Next() {
		var p domain.Pair
		if err := rows.Scan(&p.ID, &p.Theme, &p.TradFiID, &p.DeFiID); err != nil {
			return nil, fmt.Errorf("scan pair row: %w", err)
		}
		pairs = append(pairs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pair rows: %w", err)
	}
	return pairs, nil
}
