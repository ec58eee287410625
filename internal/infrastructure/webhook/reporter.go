package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MorningPulse/internal/config"
	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

// Reporter POSTs each run's health report as JSON to a configured URL.
type Reporter struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

var _ ports.HealthReporter = (*Reporter)(nil)

// NewReporter builds a reporter from configuration.
func NewReporter(cfg config.ReportConfig) *Reporter {
	return &Reporter{
		endpoint: cfg.WebhookURL,
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Report sends the report body.
func (r *Reporter) Report(ctx context.Context, report domain.HealthReport) error {
	if r == nil {
		return fmt.Errorf("webhook reporter is nil")
	}
	if r.endpoint == "" {
		return fmt.Errorf("webhook reporter misconfigured")
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return nil
}
