package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultDefiLlamaBaseURL is the keyless DefiLlama API root.
const DefaultDefiLlamaBaseURL = "https://api.llama.fi"

// daysPerYear annualizes 24h fee and revenue figures.
const daysPerYear = 365

// DefiLlamaClient fetches protocol fee and revenue summaries.
type DefiLlamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewDefiLlamaClient creates a DefiLlama client. The API is keyless.
func NewDefiLlamaClient(baseURL string, logger *logrus.Entry) *DefiLlamaClient {
	if baseURL == "" {
		baseURL = DefaultDefiLlamaBaseURL
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DefiLlamaClient{
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
		logger:     logger.WithField("provider", "defillama"),
	}
}

var _ FeesClient = (*DefiLlamaClient)(nil)

type llamaSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Total24h    *float64 `json:"total24h"`
	Total7d     *float64 `json:"total7d"`
	Total30d    *float64 `json:"total30d"`
	TotalAll    *float64 `json:"totalAllTime"`
}

// ProtocolFees fetches the dailyFees and dailyRevenue summaries in parallel.
// The fees summary is required; the revenue endpoint fails for protocols that
// route everything to liquidity providers, which is tolerated — revenue
// fields stay nil.
func (c *DefiLlamaClient) ProtocolFees(ctx context.Context, slug string) (*ProtocolFees, error) {
	var (
		fees    *llamaSummary
		feesRaw json.RawMessage
		revenue *llamaSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fees, feesRaw, err = c.fetchSummary(gctx, slug, "dailyFees")
		if err != nil {
			return fmt.Errorf("defillama fees for %s: %w", slug, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		revenue, _, err = c.fetchSummary(gctx, slug, "dailyRevenue")
		if err != nil {
			c.logger.WithError(err).WithField("protocol", slug).Debug("revenue summary unavailable")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &ProtocolFees{
		Protocol:       slug,
		DisplayName:    fees.DisplayName,
		Fees24h:        fees.Total24h,
		Fees7d:         fees.Total7d,
		Fees30d:        fees.Total30d,
		AnnualizedFees: annualize(fees.Total24h),
		Raw:            feesRaw,
	}
	if out.DisplayName == "" {
		if fees.Name != "" {
			out.DisplayName = fees.Name
		} else {
			out.DisplayName = slug
		}
	}
	if revenue != nil {
		out.Revenue24h = revenue.Total24h
		out.Revenue7d = revenue.Total7d
		out.Revenue30d = revenue.Total30d
		out.AnnualizedRevenue = annualize(revenue.Total24h)
	}
	return out, nil
}

func (c *DefiLlamaClient) fetchSummary(ctx context.Context, slug, dataType string) (*llamaSummary, json.RawMessage, error) {
	url := fmt.Sprintf("%s/summary/fees/%s?dataType=%s", c.baseURL, slug, dataType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	var summary llamaSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, nil, fmt.Errorf("decode summary: %w", err)
	}
	return &summary, body, nil
}

// annualize converts a 24h figure to a yearly one, propagating nil and
// treating a zero day as no signal rather than a zero year.
func annualize(daily *float64) *float64 {
	if daily == nil || *daily == 0 {
		return nil
	}
	v := *daily * daysPerYear
	return &v
}
