package catalog

import (
	"fmt"

	"defi-parity/internal/domain"
)

// revenueAdjustments corrects protocols whose reported revenue overstates the
// share actually retained by the protocol versus liquidity providers.
// The multiplier is applied to annualized revenue before ratio derivation.
var revenueAdjustments = map[string]float64{
	// DefiLlama reports ~100% of GMX fees as revenue, but the protocol
	// captures only ~30%; the rest goes to GLP holders.
	"gmx": 0.30,
}

// RevenueAdjustments returns the adjustment table keyed by entity id.
func RevenueAdjustments() map[string]float64 {
	out := make(map[string]float64, len(revenueAdjustments))
	for k, v := range revenueAdjustments {
		out[k] = v
	}
	return out
}

// RevenueMultiplier returns the configured multiplier for an entity,
// defaulting to 1.0 when no override exists.
func RevenueMultiplier(entityID string) float64 {
	if m, ok := revenueAdjustments[entityID]; ok {
		return m
	}
	return 1.0
}

// Validate checks catalog integrity: every entity satisfies its type
// invariant, pair ids are dense 1..N, and every adjustment key names a known
// DeFi entity. A typo in the adjustment table must fail loudly rather than
// silently fall back to no adjustment.
func Validate() error {
	seen := make(map[string]struct{})
	for i, p := range pairs {
		if p.ID != i+1 {
			return fmt.Errorf("pair ids must be dense: got %d at position %d", p.ID, i)
		}
		if err := p.TradFi.Validate(); err != nil {
			return fmt.Errorf("pair %d: %w", p.ID, err)
		}
		if err := p.DeFi.Validate(); err != nil {
			return fmt.Errorf("pair %d: %w", p.ID, err)
		}
		for _, id := range []string{p.TradFi.ID, p.DeFi.ID} {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("entity %s appears in more than one pair", id)
			}
			seen[id] = struct{}{}
		}
	}

	for id, mult := range revenueAdjustments {
		e, ok := EntityByID(id)
		if !ok {
			return fmt.Errorf("revenue adjustment for unknown entity %q", id)
		}
		if e.Type != domain.EntityTypeDeFi {
			return fmt.Errorf("revenue adjustment for non-defi entity %q", id)
		}
		if mult <= 0 || mult > 1 {
			return fmt.Errorf("revenue adjustment for %q out of range (0,1]: %v", id, mult)
		}
	}
	return nil
}
