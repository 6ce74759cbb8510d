package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CoinGecko API roots. The pro host is used whenever an API key is set.
const (
	DefaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	CoinGeckoProBaseURL     = "https://pro-api.coingecko.com/api/v3"
)

// rateLimitBackoff is how long to wait before the single retry after an
// HTTP 429 from CoinGecko.
const rateLimitBackoff = 60 * time.Second

// CoinGeckoClient fetches token valuation data from CoinGecko.
// Requests are paced through a rate limiter because the free tier allows
// roughly 10-30 calls per minute.
type CoinGeckoClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	retryBackoff time.Duration
	logger       *logrus.Entry
}

// NewCoinGeckoClient creates a CoinGecko client. With an API key the pro host
// is used and pacing is relaxed; without one the free host applies with a
// conservative one-request-per-2.5s limiter.
func NewCoinGeckoClient(apiKey string, logger *logrus.Entry) *CoinGeckoClient {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	baseURL := DefaultCoinGeckoBaseURL
	limiter := rate.NewLimiter(rate.Every(2500*time.Millisecond), 1)
	if apiKey != "" {
		baseURL = CoinGeckoProBaseURL
		limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	}

	return &CoinGeckoClient{
		baseURL:      baseURL,
		apiKey:       apiKey,
		httpClient:   newCoinGeckoHTTPClient(),
		limiter:      limiter,
		retryBackoff: rateLimitBackoff,
		logger:       logger.WithField("provider", "coingecko"),
	}
}

var _ TokenClient = (*CoinGeckoClient)(nil)

// newCoinGeckoHTTPClient is the shared retrying client with 429 excluded from
// generic retries: rate-limit responses go through the provider-specific
// one-shot backoff instead.
func newCoinGeckoHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return rc.StandardClient()
}

type coinGeckoCoin struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	MarketData *struct {
		CurrentPrice          map[string]float64  `json:"current_price"`
		MarketCap             map[string]float64  `json:"market_cap"`
		FullyDilutedValuation map[string]*float64 `json:"fully_diluted_valuation"`
		CirculatingSupply     float64             `json:"circulating_supply"`
		TotalSupply           *float64            `json:"total_supply"`
	} `json:"market_data"`
}

// TokenValuation fetches market data for one coin. A 429 response is retried
// exactly once after a fixed backoff; any further rate limiting is a failure
// for this cycle.
func (c *CoinGeckoClient) TokenValuation(ctx context.Context, coinID string) (*TokenValuation, error) {
	body, err := c.fetchCoin(ctx, coinID, true)
	if err != nil {
		return nil, err
	}

	var coin coinGeckoCoin
	if err := json.Unmarshal(body, &coin); err != nil {
		return nil, fmt.Errorf("coingecko decode for %s: %w", coinID, err)
	}
	if coin.MarketData == nil {
		return nil, fmt.Errorf("coingecko: no market data for %s", coinID)
	}

	md := coin.MarketData
	out := &TokenValuation{
		ID:                coin.ID,
		Symbol:            coin.Symbol,
		Name:              coin.Name,
		MarketCap:         md.MarketCap["usd"],
		Price:             md.CurrentPrice["usd"],
		CirculatingSupply: md.CirculatingSupply,
		TotalSupply:       md.TotalSupply,
		Raw:               body,
	}
	if fdv, ok := md.FullyDilutedValuation["usd"]; ok && fdv != nil {
		out.FDV = fdv
	}
	return out, nil
}

func (c *CoinGeckoClient) fetchCoin(ctx context.Context, coinID string, allowRetry bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&market_data=true&community_data=false&developer_data=false&sparkline=false",
		c.baseURL, coinID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko request for %s: %w", coinID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if !allowRetry {
			return nil, fmt.Errorf("coingecko: rate limited for %s", coinID)
		}
		c.logger.WithField("coin", coinID).Warn("rate limited, backing off")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryBackoff):
		}
		return c.fetchCoin(ctx, coinID, false)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: status %d for %s", resp.StatusCode, coinID)
	}
	return io.ReadAll(resp.Body)
}
