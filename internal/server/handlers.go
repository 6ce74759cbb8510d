package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"defi-parity/internal/aggregate"
	"defi-parity/internal/domain"
	"defi-parity/internal/fetcher"
	"defi-parity/internal/storage"
)

type handlers struct {
	aggregator *aggregate.Aggregator
	fetcher    *fetcher.Runner
	cronSecret string
	logger     *logrus.Logger
}

// envelope is the uniform response shape: exactly one of data or error is
// set, matched by the success flag.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("encode response")
	}
}

func (h *handlers) writeData(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (h *handlers) writeBadRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: msg})
}

// writeInternal logs the real error and returns a generic message; store
// and provider errors never reach clients.
func (h *handlers) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithFields(logrus.Fields{
		"path":  r.URL.Path,
		"error": err,
	}).Error("request failed")
	h.writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "internal server error"})
}

type latestResponse struct {
	Pairs       []domain.PairComparison `json:"pairs"`
	LastUpdated *time.Time              `json:"lastUpdated"`
}

// getLatest returns all pair comparisons, optionally filtered by category.
func (h *handlers) getLatest(w http.ResponseWriter, r *http.Request) {
	comparisons, err := h.aggregator.AllPairComparisons(r.Context())
	if err != nil {
		h.writeInternal(w, r, err)
		return
	}

	if category := r.URL.Query().Get("category"); category != "" {
		comparisons = aggregate.FilterByCategory(comparisons, category)
	}

	lastUpdated, err := h.aggregator.LastUpdated(r.Context())
	if err != nil {
		h.writeInternal(w, r, err)
		return
	}

	h.writeData(w, latestResponse{Pairs: comparisons, LastUpdated: lastUpdated})
}

type pairsResponse struct {
	Pairs       []domain.PairMetrics `json:"pairs"`
	LastUpdated *time.Time           `json:"lastUpdated"`
}

// getPairs returns all pairs joined with each side's latest metrics. A side
// without data is null rather than omitted; the optional id parameter narrows
// the result to one pair.
func (h *handlers) getPairs(w http.ResponseWriter, r *http.Request) {
	var id int
	if idParam := r.URL.Query().Get("id"); idParam != "" {
		parsed, err := strconv.Atoi(idParam)
		if err != nil || parsed < 1 {
			h.writeBadRequest(w, "parameter id must be a positive integer")
			return
		}
		id = parsed
	}

	pairs, err := h.aggregator.PairMetrics(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeBadRequest(w, "unknown pair id")
			return
		}
		h.writeInternal(w, r, err)
		return
	}

	lastUpdated, err := h.aggregator.LastUpdated(r.Context())
	if err != nil {
		h.writeInternal(w, r, err)
		return
	}

	h.writeData(w, pairsResponse{Pairs: pairs, LastUpdated: lastUpdated})
}

// getPairsHistory returns the combined historical view for one pair.
func (h *handlers) getPairsHistory(w http.ResponseWriter, r *http.Request) {
	idParam := r.URL.Query().Get("id")
	if idParam == "" {
		h.writeBadRequest(w, "missing required parameter: id")
		return
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		h.writeBadRequest(w, "parameter id must be an integer")
		return
	}

	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	data, err := h.aggregator.PairHistoricalData(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeBadRequest(w, "unknown pair id")
			return
		}
		h.writeInternal(w, r, err)
		return
	}
	h.writeData(w, data)
}

// getHistory returns one entity's history for a single metric type.
func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity")
	if entityID == "" {
		h.writeBadRequest(w, "missing required parameter: entity")
		return
	}

	metricParam := r.URL.Query().Get("metric")
	if metricParam == "" {
		h.writeBadRequest(w, "missing required parameter: metric")
		return
	}
	metricType := domain.MetricType(strings.ToLower(metricParam))
	if !metricType.Valid() {
		h.writeBadRequest(w, "unknown metric type: "+metricParam)
		return
	}

	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	series, err := h.aggregator.HistoricalSeries(r.Context(), entityID, metricType, limit)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeBadRequest(w, "unknown entity: "+entityID)
			return
		}
		h.writeInternal(w, r, err)
		return
	}

	lastUpdated, err := h.aggregator.LastUpdated(r.Context())
	if err != nil {
		h.writeInternal(w, r, err)
		return
	}

	type historyResponse struct {
		Series      *domain.HistoricalSeries `json:"series"`
		LastUpdated *time.Time               `json:"lastUpdated"`
	}
	h.writeData(w, historyResponse{Series: series, LastUpdated: lastUpdated})
}

// parseLimit reads the optional limit parameter, accepting 1..260. Zero
// means "use default".
func (h *handlers) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > aggregate.MaxHistoryLimit {
		h.writeBadRequest(w, fmt.Sprintf("parameter limit must be between 1 and %d", aggregate.MaxHistoryLimit))
		return 0, false
	}
	return limit, true
}

// cronFetch triggers a synchronous fetch cycle. When a secret is configured
// the caller must present it as a bearer token.
func (h *handlers) cronFetch(w http.ResponseWriter, r *http.Request) {
	if h.fetcher == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "fetching is not enabled on this instance"})
		return
	}

	if h.cronSecret != "" {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+h.cronSecret {
			h.writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}
	}

	result, err := h.fetcher.Run(r.Context())
	if err != nil {
		h.writeInternal(w, r, err)
		return
	}

	type cronResponse struct {
		Succeeded  int      `json:"succeeded"`
		Failed     int      `json:"failed"`
		Duration   string   `json:"duration"`
		CapturedAt string   `json:"capturedAt"`
		Failures   []string `json:"failures,omitempty"`
	}
	resp := cronResponse{
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Duration:   result.Duration.Round(time.Millisecond).String(),
		CapturedAt: result.CapturedAt.Format(time.RFC3339),
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, f.EntityID+": "+f.Err.Error())
	}
	h.writeData(w, resp)
}

// health reports liveness plus the staleness of the stored data.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	lastUpdated, err := h.aggregator.LastUpdated(r.Context())
	if err != nil {
		h.writeInternal(w, r, err)
		return
	}

	type healthResponse struct {
		Status      string     `json:"status"`
		LastUpdated *time.Time `json:"lastUpdated"`
	}
	h.writeData(w, healthResponse{Status: "ok", LastUpdated: lastUpdated})
}
