// Package notify delivers job-settlement webhooks. Delivery is fire and
// forget from the registry's settle path: it retries transient failures with
// exponential backoff but never affects job state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mfranzen/storyforge/internal/model"
)

// SettlementPayload is the JSON body POSTed when a job reaches a terminal
// status.
type SettlementPayload struct {
	ID         string          `json:"id"`
	Status     model.JobStatus `json:"status"`
	Message    string          `json:"message"`
	ResultPath string          `json:"resultPath,omitempty"`
	Error      string          `json:"error,omitempty"`
	StoryType  model.StoryType `json:"story_type,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	Timestamp  string          `json:"timestamp"`
}

// Notifier POSTs settlement payloads to a fixed webhook URL.
type Notifier struct {
	url        string
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// NewNotifier builds a notifier for url. timeout bounds each delivery
// attempt.
func NewNotifier(url string, timeout time.Duration, retry RetryConfig) *Notifier {
	retry.SetDefaults()
	return &Notifier{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:  retry,
		logger: slog.Default(),
	}
}

// JobSettled matches the registry's settlement callback shape. Runs on the
// registry's notification goroutine; errors are logged, never returned.
func (n *Notifier) JobSettled(job model.Job, payload model.Payload) {
	settlement := SettlementPayload{
		ID:         job.ID,
		Status:     job.Status,
		Message:    job.Message,
		ResultPath: job.ResultPath,
		Error:      job.Error,
		StoryType:  payload.StoryType(),
		DurationMS: job.UpdatedAt - job.CreatedAt,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := n.deliver(ctx, settlement); err != nil {
		n.logger.Error("settlement webhook delivery failed",
			"job_id", job.ID,
			"webhook_url", n.url,
			"error", err,
		)
	}
}

// deliver attempts the POST with exponential backoff on transient failures.
func (n *Notifier) deliver(ctx context.Context, settlement SettlementPayload) error {
	body, err := json.Marshal(settlement)
	if err != nil {
		return fmt.Errorf("marshal settlement payload: %w", err)
	}

	for attempt := 1; attempt <= n.retry.MaxAttempts; attempt++ {
		statusCode, err := n.post(ctx, body)
		if err == nil && statusCode >= 200 && statusCode < 300 {
			n.logger.Info("settlement webhook delivered",
				"job_id", settlement.ID,
				"attempt", attempt,
				"status_code", statusCode,
			)
			return nil
		}

		if !n.retry.shouldRetry(attempt, statusCode, err) {
			return fmt.Errorf("delivery failed after %d attempt(s): status %d, err %v", attempt, statusCode, err)
		}

		delay := n.retry.delay(attempt)
		n.logger.Warn("settlement webhook delivery failed, retrying",
			"job_id", settlement.ID,
			"attempt", attempt,
			"next_retry_ms", delay.Milliseconds(),
			"status_code", statusCode,
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("delivery failed after %d attempts", n.retry.MaxAttempts)
}

// post performs one delivery attempt, returning the response status code.
func (n *Notifier) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain a bounded slice of the body so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
