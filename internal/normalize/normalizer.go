// Package normalize maps heterogeneous provider payloads into the canonical
// metric set. All functions are pure: output depends only on the inputs and
// the static revenue adjustment table.
package normalize

import (
	"errors"

	"defi-parity/internal/domain"
	"defi-parity/internal/provider"
)

// Failure reasons, distinguishable so the orchestration layer can report a
// per-entity cause.
var (
	// ErrNoTicker means a TradFi entity has no ticker configured.
	ErrNoTicker = errors.New("no ticker configured")

	// ErrNoIdentifier means a DeFi entity has neither a CoinGecko nor a
	// DefiLlama id configured.
	ErrNoIdentifier = errors.New("no identifier configured")

	// ErrNoData means the upstream returned nothing usable for the entity.
	ErrNoData = errors.New("upstream returned no usable data")
)

// Normalizer derives canonical metrics from provider records.
type Normalizer struct {
	adjustments map[string]float64 // entity id -> revenue multiplier
}

// New creates a Normalizer with the given revenue adjustment table.
// Entities absent from the table use a multiplier of 1.0.
func New(adjustments map[string]float64) *Normalizer {
	copied := make(map[string]float64, len(adjustments))
	for k, v := range adjustments {
		copied[k] = v
	}
	return &Normalizer{adjustments: copied}
}

// RevenueMultiplier returns the multiplier applied to an entity's reported
// revenue, defaulting to 1.0.
func (n *Normalizer) RevenueMultiplier(entityID string) float64 {
	if m, ok := n.adjustments[entityID]; ok {
		return m
	}
	return 1.0
}

// TradFi derives metrics from an FMP fundamentals record.
//
// Revenue and fees coincide for TradFi in this model: TTM revenue stands in
// as a fees proxy, not double-counted downstream. Upstream TTM ratios are
// preferred; when absent, a ratio is computed from market cap only if the
// denominator is strictly positive, otherwise it stays nil.
func (n *Normalizer) TradFi(data *provider.TradFiFundamentals) (domain.MetricSet, error) {
	if data == nil {
		return domain.MetricSet{}, ErrNoData
	}

	marketCap := data.MarketCap
	if marketCap <= 0 {
		return domain.MetricSet{}, ErrNoData
	}
	revenue := data.TTMRevenue
	netIncome := data.TTMNetIncome

	set := domain.MetricSet{
		EquityValue: &marketCap,
		Revenue:     &revenue,
		Fees:        &revenue,
		PERatio:     data.PERatio,
		PSRatio:     data.PSRatio,
	}
	if set.PERatio == nil {
		set.PERatio = SafeRatio(&marketCap, &netIncome)
	}
	if set.PSRatio == nil {
		set.PSRatio = SafeRatio(&marketCap, &revenue)
	}
	return set, nil
}

// DeFi derives metrics from the two independent DeFi sub-fetches. Either may
// be nil; only both missing is a failure. Fields sourced from a missing side
// stay nil.
//
// P/E uses retained protocol revenue (after the per-entity adjustment), P/S
// uses total fees paid by users, so the two ratios are independent: a
// protocol with zero retained revenue but positive fees has a nil P/E and a
// finite P/S.
func (n *Normalizer) DeFi(entityID string, token *provider.TokenValuation, fees *provider.ProtocolFees) (domain.MetricSet, error) {
	if token == nil && fees == nil {
		return domain.MetricSet{}, ErrNoData
	}

	var set domain.MetricSet

	if token != nil {
		if token.FDV != nil {
			set.EquityValue = token.FDV
		} else if mc := token.MarketCap; mc > 0 {
			set.EquityValue = &mc
		}
	}

	if fees != nil {
		set.Fees = fees.AnnualizedFees
		set.Revenue = Scale(fees.AnnualizedRevenue, n.RevenueMultiplier(entityID))
	}

	set.PERatio = SafeRatio(set.EquityValue, set.Revenue)
	set.PSRatio = SafeRatio(set.EquityValue, set.Fees)
	return set, nil
}
