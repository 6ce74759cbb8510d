package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultFMPBaseURL is the FMP "stable" API root.
const DefaultFMPBaseURL = "https://financialmodelingprep.com/stable"

// FMPClient fetches TradFi fundamentals from Financial Modeling Prep.
type FMPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewFMPClient creates an FMP client. baseURL is optional and defaults to the
// public stable API; the API key is required for every endpoint.
func NewFMPClient(baseURL, apiKey string, logger *logrus.Entry) *FMPClient {
	if baseURL == "" {
		baseURL = DefaultFMPBaseURL
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FMPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: newHTTPClient(),
		logger:     logger.WithField("provider", "fmp"),
	}
}

var _ TradFiClient = (*FMPClient)(nil)

type fmpQuote struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketCap"`
}

type fmpIncomeStatement struct {
	Date      string  `json:"date"`
	Symbol    string  `json:"symbol"`
	Revenue   float64 `json:"revenue"`
	NetIncome float64 `json:"netIncome"`
}

type fmpKeyMetrics struct {
	Symbol            string   `json:"symbol"`
	PERatio           *float64 `json:"peRatio"`
	PriceToSalesRatio *float64 `json:"priceToSalesRatio"`
}

type fmpRatiosTTM struct {
	PriceToEarningsRatioTTM *float64 `json:"priceToEarningsRatioTTM"`
	PriceToSalesRatioTTM    *float64 `json:"priceToSalesRatioTTM"`
}

// Fundamentals fetches quote, income statement and the two TTM ratio feeds in
// parallel. The quote is required; everything else degrades to the computed
// fallback path in the normalizer. Ratio priority: ratios-ttm, then
// key-metrics-ttm.
func (c *FMPClient) Fundamentals(ctx context.Context, ticker string) (*TradFiFundamentals, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("fmp: api key not configured")
	}

	var (
		quote      *fmpQuote
		quoteRaw   json.RawMessage
		statements []fmpIncomeStatement
		keyMetrics *fmpKeyMetrics
		ratios     *fmpRatiosTTM
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quote, quoteRaw, err = c.fetchQuote(gctx, ticker)
		return err
	})
	g.Go(func() error {
		var err error
		statements, err = c.fetchIncomeStatements(gctx, ticker)
		if err != nil {
			c.logger.WithError(err).WithField("ticker", ticker).Warn("income statement unavailable")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		keyMetrics, err = c.fetchKeyMetricsTTM(gctx, ticker)
		if err != nil {
			c.logger.WithError(err).WithField("ticker", ticker).Debug("key metrics unavailable")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ratios, err = c.fetchRatiosTTM(gctx, ticker)
		if err != nil {
			c.logger.WithError(err).WithField("ticker", ticker).Debug("ratios-ttm unavailable")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &TradFiFundamentals{
		Ticker:    ticker,
		Name:      quote.Name,
		MarketCap: quote.MarketCap,
		Raw:       quoteRaw,
	}
	if len(statements) > 0 {
		out.TTMRevenue = statements[0].Revenue
		out.TTMNetIncome = statements[0].NetIncome
	}
	switch {
	case ratios != nil && ratios.PriceToEarningsRatioTTM != nil:
		out.PERatio = ratios.PriceToEarningsRatioTTM
	case keyMetrics != nil && keyMetrics.PERatio != nil:
		out.PERatio = keyMetrics.PERatio
	}
	switch {
	case ratios != nil && ratios.PriceToSalesRatioTTM != nil:
		out.PSRatio = ratios.PriceToSalesRatioTTM
	case keyMetrics != nil && keyMetrics.PriceToSalesRatio != nil:
		out.PSRatio = keyMetrics.PriceToSalesRatio
	}
	return out, nil
}

func (c *FMPClient) fetchQuote(ctx context.Context, ticker string) (*fmpQuote, json.RawMessage, error) {
	body, err := c.get(ctx, "/quote", url.Values{"symbol": {ticker}})
	if err != nil {
		return nil, nil, fmt.Errorf("fmp quote for %s: %w", ticker, err)
	}

	// The stable API returns either a single object or an array.
	quotes, err := decodeOneOrMany[fmpQuote](body)
	if err != nil {
		return nil, nil, fmt.Errorf("fmp quote for %s: %w", ticker, err)
	}
	if len(quotes) == 0 || quotes[0].Symbol == "" {
		return nil, nil, fmt.Errorf("fmp quote for %s: empty response", ticker)
	}
	return &quotes[0], body, nil
}

func (c *FMPClient) fetchIncomeStatements(ctx context.Context, ticker string) ([]fmpIncomeStatement, error) {
	body, err := c.get(ctx, "/income-statement", url.Values{
		"symbol": {ticker},
		"period": {"annual"},
		"limit":  {"4"},
	})
	if err != nil {
		return nil, err
	}
	var statements []fmpIncomeStatement
	if err := json.Unmarshal(body, &statements); err != nil {
		return nil, fmt.Errorf("decode income statements: %w", err)
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("empty income statement response")
	}
	return statements, nil
}

func (c *FMPClient) fetchKeyMetricsTTM(ctx context.Context, ticker string) (*fmpKeyMetrics, error) {
	body, err := c.get(ctx, "/key-metrics-ttm", url.Values{"symbol": {ticker}})
	if err != nil {
		return nil, err
	}
	metrics, err := decodeOneOrMany[fmpKeyMetrics](body)
	if err != nil {
		return nil, fmt.Errorf("decode key metrics: %w", err)
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("empty key metrics response")
	}
	return &metrics[0], nil
}

func (c *FMPClient) fetchRatiosTTM(ctx context.Context, ticker string) (*fmpRatiosTTM, error) {
	body, err := c.get(ctx, "/ratios-ttm", url.Values{"symbol": {ticker}})
	if err != nil {
		return nil, err
	}
	var ratios []fmpRatiosTTM
	if err := json.Unmarshal(body, &ratios); err != nil {
		return nil, fmt.Errorf("decode ratios-ttm: %w", err)
	}
	if len(ratios) == 0 {
		return nil, fmt.Errorf("empty ratios-ttm response")
	}
	return &ratios[0], nil
}

func (c *FMPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// decodeOneOrMany handles FMP endpoints that return either a bare object or
// an array of objects depending on API version.
func decodeOneOrMany[T any](body []byte) ([]T, error) {
	var many []T
	if err := json.Unmarshal(body, &many); err == nil {
		return many, nil
	}
	var one T
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, fmt.Errorf("unexpected response shape: %w", err)
	}
	return []T{one}, nil
}
