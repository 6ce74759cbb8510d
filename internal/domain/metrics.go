package domain

import "time"

// MetricType names one of the five canonical measurements.
type MetricType string

const (
	MetricEquityValue MetricType = "equity_value"
	MetricRevenue     MetricType = "revenue"
	MetricFees        MetricType = "fees"
	MetricPERatio     MetricType = "pe_ratio"
	MetricPSRatio     MetricType = "ps_ratio"
)

// AllMetricTypes returns the five canonical metric types in storage order.
func AllMetricTypes() []MetricType {
	return []MetricType{MetricEquityValue, MetricRevenue, MetricFees, MetricPERatio, MetricPSRatio}
}

// Valid reports whether the metric type is one of the five canonical types.
func (m MetricType) Valid() bool {
	switch m {
	case MetricEquityValue, MetricRevenue, MetricFees, MetricPERatio, MetricPSRatio:
		return true
	}
	return false
}

// Snapshot is an immutable point-in-time capture of a single entity's raw
// fetch result. Corresponds to the snapshots table.
type Snapshot struct {
	ID         string
	EntityID   string
	CapturedAt time.Time
	Source     string // provenance tag: "fmp", "coingecko+defillama", "mock"
	RawJSON    string
	CreatedAt  time.Time
}

// Metric is one named measurement belonging to a snapshot.
// Corresponds to the metrics table. Value is nil for a null measurement.
type Metric struct {
	ID         string
	SnapshotID string
	Type       MetricType
	Value      *float64
	CreatedAt  time.Time
}

// MetricValue is the write-side shape of one metric row.
type MetricValue struct {
	Type  MetricType
	Value *float64
}

// MetricSet is the canonical metric set for one entity. Each field is a
// finite number or nil; nil propagates through ratio and spread arithmetic.
type MetricSet struct {
	EquityValue *float64 `json:"equityValue"`
	Revenue     *float64 `json:"revenue"`
	Fees        *float64 `json:"fees"`
	PERatio     *float64 `json:"peRatio"`
	PSRatio     *float64 `json:"psRatio"`
}

// Values expands the set into the five canonical metric rows.
func (s MetricSet) Values() []MetricValue {
	return []MetricValue{
		{Type: MetricEquityValue, Value: s.EquityValue},
		{Type: MetricRevenue, Value: s.Revenue},
		{Type: MetricFees, Value: s.Fees},
		{Type: MetricPERatio, Value: s.PERatio},
		{Type: MetricPSRatio, Value: s.PSRatio},
	}
}

// EntityMetrics is the most recent fully-joined metric set for one entity.
// Derived view, not stored.
type EntityMetrics struct {
	EntityID   string     `json:"entityId"`
	Name       string     `json:"name"`
	Type       EntityType `json:"type"`
	Category   string     `json:"category"`
	CapturedAt time.Time  `json:"capturedAt"`
	MetricSet
}

// PairComparison joins a pair's two latest metric sets with spread values.
// Spreads are DeFi minus TradFi, nil unless both operands are non-nil.
type PairComparison struct {
	PairID   int           `json:"pairId"`
	Theme    string        `json:"theme"`
	TradFi   EntityMetrics `json:"tradfi"`
	DeFi     EntityMetrics `json:"defi"`
	PESpread *float64      `json:"peSpread"`
	PSSpread *float64      `json:"psSpread"`
}

// PairMetrics is the latest-metrics view of one pair. Unlike PairComparison
// it is never omitted: a side with no snapshot yet is nil.
type PairMetrics struct {
	PairID int            `json:"id"`
	Theme  string         `json:"theme"`
	TradFi *EntityMetrics `json:"tradfi"`
	DeFi   *EntityMetrics `json:"defi"`
}

// HistoricalDataPoint is one chronological sample of a single metric.
type HistoricalDataPoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// HistoricalSeries is a chronologically ascending series for one entity and
// metric type.
type HistoricalSeries struct {
	EntityID   string                `json:"entityId"`
	MetricType MetricType            `json:"metricType"`
	Data       []HistoricalDataPoint `json:"data"`
}

// PairHistoricalData bundles both sides' P/E and equity-value series plus a
// derived P/E spread series defined only on dates where both sides have a
// value.
type PairHistoricalData struct {
	PairID        int                   `json:"pairId"`
	Theme         string                `json:"theme"`
	TradFiName    string                `json:"tradfiName"`
	DeFiName      string                `json:"defiName"`
	TradFiPE      []HistoricalDataPoint `json:"tradfiPeHistory"`
	DeFiPE        []HistoricalDataPoint `json:"defiPeHistory"`
	TradFiEquity  []HistoricalDataPoint `json:"tradfiEquityHistory"`
	DeFiEquity    []HistoricalDataPoint `json:"defiEquityHistory"`
	SpreadHistory []HistoricalDataPoint `json:"spreadHistory"`
}
