// Package provider contains clients for the three upstream data sources:
// Financial Modeling Prep (TradFi fundamentals), CoinGecko (token valuation)
// and DefiLlama (protocol fees/revenue).
package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// TradFiClient fetches fundamentals for a stock ticker.
type TradFiClient interface {
	// Fundamentals returns the TradFi record for a ticker, or an error when
	// no usable quote exists.
	Fundamentals(ctx context.Context, ticker string) (*TradFiFundamentals, error)
}

// TokenClient fetches token valuation data for a CoinGecko coin id.
type TokenClient interface {
	TokenValuation(ctx context.Context, coinID string) (*TokenValuation, error)
}

// FeesClient fetches protocol fees and revenue for a DefiLlama slug.
type FeesClient interface {
	ProtocolFees(ctx context.Context, slug string) (*ProtocolFees, error)
}

// TradFiFundamentals is the normalized FMP record for one ticker.
// PERatio/PSRatio carry the upstream TTM ratios when an FMP ratio endpoint
// returned them; nil means the normalizer must fall back to a computed ratio.
type TradFiFundamentals struct {
	Ticker       string
	Name         string
	MarketCap    float64
	TTMRevenue   float64 // 0 when no income statement was available
	TTMNetIncome float64
	PERatio      *float64
	PSRatio      *float64
	Raw          json.RawMessage // quote payload, kept for snapshot provenance
}

// TokenValuation is the normalized CoinGecko record for one coin.
type TokenValuation struct {
	ID                string
	Symbol            string
	Name              string
	FDV               *float64 // fully diluted valuation, nil when unreported
	MarketCap         float64
	Price             float64
	CirculatingSupply float64
	TotalSupply       *float64
	Raw               json.RawMessage
}

// ProtocolFees is the normalized DefiLlama record for one protocol.
// Fees are total value paid by users; revenue is the share the protocol
// retains. Annualized values are the 24h figures times 365.
type ProtocolFees struct {
	Protocol          string
	DisplayName       string
	Fees24h           *float64
	Fees7d            *float64
	Fees30d           *float64
	Revenue24h        *float64
	Revenue7d         *float64
	Revenue30d        *float64
	AnnualizedFees    *float64
	AnnualizedRevenue *float64
	Raw               json.RawMessage
}

// newHTTPClient builds the shared retrying HTTP client used by all provider
// clients. Transient transport failures and 5xx responses retry with backoff;
// rate-limit handling stays provider-specific.
func newHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	return rc.StandardClient()
}
