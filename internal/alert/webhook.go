// Package alert sends best-effort failure notifications to a webhook at the
// end of a fetch cycle. A nil or unconfigured notifier is a no-op; alerting
// never fails a cycle.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Failure describes one failed entity fetch for the alert payload.
type Failure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Notifier posts cycle failure summaries.
type Notifier interface {
	NotifyFailures(ctx context.Context, failures []Failure) error
}

// Webhook posts a JSON summary to a configured URL.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Logger
}

// Compile-time interface check.
var _ Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier. An empty URL disables it.
func NewWebhook(url string, logger *logrus.Logger) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type webhookPayload struct {
	Text string `json:"text"`
}

// NotifyFailures posts a human-readable summary of the failed entities.
// Does nothing when no URL is configured or the failure list is empty.
func (w *Webhook) NotifyFailures(ctx context.Context, failures []Failure) error {
	if w == nil || w.url == "" || len(failures) == 0 {
		return nil
	}

	text := fmt.Sprintf("valuation fetch: %d entities failed\n", len(failures))
	for _, f := range failures {
		text += fmt.Sprintf("- %s: %s\n", f.Name, f.Reason)
	}

	body, err := json.Marshal(webhookPayload{Text: text})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	w.logger.WithField("failures", len(failures)).Info("alert webhook delivered")
	return nil
}
