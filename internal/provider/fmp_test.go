package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFMPTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range handlers {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func jsonResponse(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestFundamentals_RatiosTTMPreferred(t *testing.T) {
	srv := newFMPTestServer(t, map[string]http.HandlerFunc{
		"/quote":            jsonResponse(`[{"symbol":"NDAQ","name":"Nasdaq","price":82.5,"marketCap":42000000000}]`),
		"/income-statement": jsonResponse(`[{"date":"2025-12-31","symbol":"NDAQ","revenue":6500000000,"netIncome":1100000000}]`),
		"/key-metrics-ttm":  jsonResponse(`[{"symbol":"NDAQ","peRatio":37.0,"priceToSalesRatio":6.2}]`),
		"/ratios-ttm":       jsonResponse(`[{"priceToEarningsRatioTTM":38.2,"priceToSalesRatioTTM":6.5}]`),
	})

	c := NewFMPClient(srv.URL, "test-key", nil)
	got, err := c.Fundamentals(context.Background(), "NDAQ")
	require.NoError(t, err)

	assert.Equal(t, "Nasdaq", got.Name)
	assert.InDelta(t, 42e9, got.MarketCap, 1)
	assert.InDelta(t, 6.5e9, got.TTMRevenue, 1)
	assert.InDelta(t, 1.1e9, got.TTMNetIncome, 1)

	require.NotNil(t, got.PERatio)
	assert.InDelta(t, 38.2, *got.PERatio, 1e-9, "ratios-ttm wins over key-metrics")
	require.NotNil(t, got.PSRatio)
	assert.InDelta(t, 6.5, *got.PSRatio, 1e-9)
	assert.NotEmpty(t, got.Raw)
}

func TestFundamentals_KeyMetricsFallback(t *testing.T) {
	srv := newFMPTestServer(t, map[string]http.HandlerFunc{
		"/quote":            jsonResponse(`[{"symbol":"CME","name":"CME Group","marketCap":85000000000}]`),
		"/income-statement": jsonResponse(`[{"symbol":"CME","revenue":5600000000,"netIncome":3200000000}]`),
		"/key-metrics-ttm":  jsonResponse(`[{"symbol":"CME","peRatio":26.5,"priceToSalesRatio":15.1}]`),
		"/ratios-ttm": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	})

	c := NewFMPClient(srv.URL, "test-key", nil)
	got, err := c.Fundamentals(context.Background(), "CME")
	require.NoError(t, err)

	require.NotNil(t, got.PERatio)
	assert.InDelta(t, 26.5, *got.PERatio, 1e-9)
}

func TestFundamentals_QuoteRequired(t *testing.T) {
	srv := newFMPTestServer(t, map[string]http.HandlerFunc{
		"/quote": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		"/income-statement": jsonResponse(`[{"symbol":"XYZ","revenue":1}]`),
		"/key-metrics-ttm":  jsonResponse(`[{"symbol":"XYZ"}]`),
		"/ratios-ttm":       jsonResponse(`[{}]`),
	})

	c := NewFMPClient(srv.URL, "test-key", nil)
	_, err := c.Fundamentals(context.Background(), "XYZ")
	assert.Error(t, err, "quote failure fails the whole fetch")
}

func TestFundamentals_OptionalEndpointsDegrade(t *testing.T) {
	srv := newFMPTestServer(t, map[string]http.HandlerFunc{
		"/quote": jsonResponse(`[{"symbol":"TW","name":"Tradeweb","marketCap":25000000000}]`),
		"/income-statement": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
		"/key-metrics-ttm": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
		"/ratios-ttm": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
	})

	c := NewFMPClient(srv.URL, "test-key", nil)
	got, err := c.Fundamentals(context.Background(), "TW")
	require.NoError(t, err)

	assert.InDelta(t, 25e9, got.MarketCap, 1)
	assert.Zero(t, got.TTMRevenue)
	assert.Nil(t, got.PERatio, "missing ratio feeds leave ratios nil for the computed fallback")
	assert.Nil(t, got.PSRatio)
}

func TestFundamentals_ObjectResponseShape(t *testing.T) {
	// The stable API sometimes returns a bare object instead of an array.
	srv := newFMPTestServer(t, map[string]http.HandlerFunc{
		"/quote":            jsonResponse(`{"symbol":"JPM","name":"JPMorgan","marketCap":580000000000}`),
		"/income-statement": jsonResponse(`[]`),
		"/key-metrics-ttm":  jsonResponse(`{"symbol":"JPM","peRatio":12.4}`),
		"/ratios-ttm":       jsonResponse(`[]`),
	})

	c := NewFMPClient(srv.URL, "test-key", nil)
	got, err := c.Fundamentals(context.Background(), "JPM")
	require.NoError(t, err)

	assert.InDelta(t, 580e9, got.MarketCap, 1)
	require.NotNil(t, got.PERatio)
	assert.InDelta(t, 12.4, *got.PERatio, 1e-9)
}

func TestFundamentals_MissingAPIKey(t *testing.T) {
	c := NewFMPClient("http://localhost:0", "", nil)
	_, err := c.Fundamentals(context.Background(), "NDAQ")
	assert.Error(t, err)
}

func TestFundamentals_APIKeyForwarded(t *testing.T) {
	var gotKey string
	srv := newFMPTestServer(t, map[string]http.HandlerFunc{
		"/quote": func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.URL.Query().Get("apikey")
			jsonResponse(`[{"symbol":"BLK","marketCap":1}]`)(w, r)
		},
		"/income-statement": jsonResponse(`[]`),
		"/key-metrics-ttm":  jsonResponse(`[]`),
		"/ratios-ttm":       jsonResponse(`[]`),
	})

	c := NewFMPClient(srv.URL, "secret", nil)
	_, err := c.Fundamentals(context.Background(), "BLK")
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}
