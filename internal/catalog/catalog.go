// Package catalog holds the static TradFi vs DeFi pair catalog.
// The catalog is the source of truth for which entities are tracked; the
// database copy is synced from it via idempotent upserts on every run.
package catalog

import (
	"sort"

	"defi-parity/internal/domain"
)

// Pair is a catalog entry with both member entities inlined.
type Pair struct {
	ID     int
	Theme  string
	TradFi domain.Entity
	DeFi   domain.Entity
}

// Record converts the catalog entry to its stored form.
func (p Pair) Record() domain.Pair {
	return domain.Pair{ID: p.ID, Theme: p.Theme, TradFiID: p.TradFi.ID, DeFiID: p.DeFi.ID}
}

var pairs = []Pair{
	{
		ID:     1,
		Theme:  "Market Infrastructure",
		TradFi: domain.Entity{ID: "nasdaq", Name: "Nasdaq", Type: domain.EntityTypeTradFi, Category: "Exchange", Ticker: "NDAQ"},
		DeFi:   domain.Entity{ID: "uniswap", Name: "Uniswap", Type: domain.EntityTypeDeFi, Category: "Exchange", CoinGeckoID: "uniswap", DefiLlamaID: "uniswap"},
	},
	{
		ID:     2,
		Theme:  "Money Markets",
		TradFi: domain.Entity{ID: "jpmorgan", Name: "JPMorgan", Type: domain.EntityTypeTradFi, Category: "Bank", Ticker: "JPM"},
		DeFi:   domain.Entity{ID: "aave", Name: "Aave", Type: domain.EntityTypeDeFi, Category: "Lending", CoinGeckoID: "aave", DefiLlamaID: "aave"},
	},
	{
		ID:     3,
		Theme:  "Asset Management",
		TradFi: domain.Entity{ID: "blackrock", Name: "BlackRock", Type: domain.EntityTypeTradFi, Category: "Asset Management", Ticker: "BLK"},
		DeFi:   domain.Entity{ID: "lido", Name: "Lido", Type: domain.EntityTypeDeFi, Category: "Liquid Staking", CoinGeckoID: "lido-dao", DefiLlamaID: "lido"},
	},
	{
		ID:     4,
		Theme:  "Private Credit",
		TradFi: domain.Entity{ID: "apollo", Name: "Apollo Global", Type: domain.EntityTypeTradFi, Category: "Alt Asset Management", Ticker: "APO"},
		DeFi:   domain.Entity{ID: "ondo", Name: "Ondo Finance", Type: domain.EntityTypeDeFi, Category: "RWA/Tokenization", CoinGeckoID: "ondo-finance", DefiLlamaID: "ondo-finance"},
	},
	{
		ID:     5,
		Theme:  "Prime Brokerage",
		TradFi: domain.Entity{ID: "ibkr", Name: "Interactive Brokers", Type: domain.EntityTypeTradFi, Category: "Brokerage", Ticker: "IBKR"},
		DeFi:   domain.Entity{ID: "hyperliquid", Name: "Hyperliquid", Type: domain.EntityTypeDeFi, Category: "Perps DEX", CoinGeckoID: "hyperliquid", DefiLlamaID: "hyperliquid"},
	},
	{
		ID:     6,
		Theme:  "Treasury & Issuance",
		TradFi: domain.Entity{ID: "statestreet", Name: "State Street", Type: domain.EntityTypeTradFi, Category: "Custody/Bank", Ticker: "STT"},
		// MKR migrated to SKY; FDV tracks the SKY token while fees stay on the makerdao slug.
		DeFi: domain.Entity{ID: "makerdao", Name: "Sky (Maker)", Type: domain.EntityTypeDeFi, Category: "Stablecoin Issuer", CoinGeckoID: "sky", DefiLlamaID: "makerdao"},
	},
	{
		ID:     7,
		Theme:  "Derivatives",
		TradFi: domain.Entity{ID: "cme", Name: "CME Group", Type: domain.EntityTypeTradFi, Category: "Derivatives", Ticker: "CME"},
		DeFi:   domain.Entity{ID: "gmx", Name: "GMX", Type: domain.EntityTypeDeFi, Category: "Perps DEX", CoinGeckoID: "gmx", DefiLlamaID: "gmx"},
	},
	{
		ID:     8,
		Theme:  "Deep Liquidity",
		TradFi: domain.Entity{ID: "tradeweb", Name: "Tradeweb", Type: domain.EntityTypeTradFi, Category: "Rates Trading", Ticker: "TW"},
		DeFi:   domain.Entity{ID: "curve", Name: "Curve", Type: domain.EntityTypeDeFi, Category: "Stable Swap", CoinGeckoID: "curve-dao-token", DefiLlamaID: "curve-dex"},
	},
	{
		ID:     9,
		Theme:  "Fixed Income",
		TradFi: domain.Entity{ID: "marketaxess", Name: "MarketAxess", Type: domain.EntityTypeTradFi, Category: "Bond Trading", Ticker: "MKTX"},
		DeFi:   domain.Entity{ID: "pendle", Name: "Pendle", Type: domain.EntityTypeDeFi, Category: "Yield Trading", CoinGeckoID: "pendle", DefiLlamaID: "pendle"},
	},
	{
		ID:     10,
		Theme:  "Trade Execution",
		TradFi: domain.Entity{ID: "cboe", Name: "Cboe Global", Type: domain.EntityTypeTradFi, Category: "Options Exchange", Ticker: "CBOE"},
		DeFi:   domain.Entity{ID: "jupiter", Name: "Jupiter", Type: domain.EntityTypeDeFi, Category: "DEX Aggregator", CoinGeckoID: "jupiter-exchange-solana", DefiLlamaID: "jupiter"},
	},
}

// Pairs returns all configured pairs ordered by id.
func Pairs() []Pair {
	out := make([]Pair, len(pairs))
	copy(out, pairs)
	return out
}

// Entities returns all entities in pair order, TradFi side first.
func Entities() []domain.Entity {
	out := make([]domain.Entity, 0, 2*len(pairs))
	for _, p := range pairs {
		out = append(out, p.TradFi, p.DeFi)
	}
	return out
}

// PairByID returns the pair with the given id, or false if not configured.
func PairByID(id int) (Pair, bool) {
	for _, p := range pairs {
		if p.ID == id {
			return p, true
		}
	}
	return Pair{}, false
}

// EntityByID returns the entity with the given slug, or false if unknown.
func EntityByID(id string) (domain.Entity, bool) {
	for _, p := range pairs {
		if p.TradFi.ID == id {
			return p.TradFi, true
		}
		if p.DeFi.ID == id {
			return p.DeFi, true
		}
	}
	return domain.Entity{}, false
}

// Categories returns the sorted set of distinct categories across both sides.
func Categories() []string {
	set := make(map[string]struct{})
	for _, p := range pairs {
		set[p.TradFi.Category] = struct{}{}
		set[p.DeFi.Category] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
