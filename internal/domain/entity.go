package domain

import "fmt"

// EntityType distinguishes traditional-finance institutions from DeFi protocols.
type EntityType string

const (
	EntityTypeTradFi EntityType = "tradfi"
	EntityTypeDeFi   EntityType = "defi"
)

// Valid reports whether the entity type is one of the known values.
func (t EntityType) Valid() bool {
	return t == EntityTypeTradFi || t == EntityTypeDeFi
}

// Entity represents a tracked institution or protocol.
// Corresponds to the entities table.
type Entity struct {
	ID          string     `json:"id"` // stable slug, primary key
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	Category    string     `json:"category"`
	Ticker      string     `json:"ticker,omitempty"`      // TradFi only
	CoinGeckoID string     `json:"coingeckoId,omitempty"` // DeFi only
	DefiLlamaID string     `json:"defiLlamaId,omitempty"` // DeFi only
}

// Validate checks the per-type identifier invariant: TradFi entities need a
// ticker, DeFi entities need at least one of CoinGecko/DefiLlama ids.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entity has no id")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("entity %s: unknown type %q", e.ID, e.Type)
	}
	switch e.Type {
	case EntityTypeTradFi:
		if e.Ticker == "" {
			return fmt.Errorf("tradfi entity %s has no ticker", e.ID)
		}
	case EntityTypeDeFi:
		if e.CoinGeckoID == "" && e.DefiLlamaID == "" {
			return fmt.Errorf("defi entity %s has no coingecko or defillama id", e.ID)
		}
	}
	return nil
}

// Pair is a fixed thematic association of one TradFi and one DeFi entity.
// Corresponds to the pairs table.
type Pair struct {
	ID       int    `json:"id"` // dense 1..N
	Theme    string `json:"theme"`
	TradFiID string `json:"tradfiId"`
	DeFiID   string `json:"defiId"`
}
