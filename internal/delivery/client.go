// Package delivery performs the outbound HTTP call to the downstream
// application, with bounded retry and exponential backoff.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/atomine-elektrine/elektrine-haraka/internal/email"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds delivery client settings.
type Config struct {
	// WebhookURL is the downstream delivery endpoint.
	WebhookURL string

	// APIKey authenticates this worker to the downstream application.
	APIKey string

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the initial backoff; attempt n sleeps BaseDelay*2^n.
	BaseDelay time.Duration

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration
}

// Client delivers payloads to the downstream endpoint. The underlying
// HTTP client keeps connections alive so the per-message setup cost is
// amortized across the high volume of small requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a delivery client.
func New(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Error is a classified delivery failure. StatusCode is zero for
// network-level errors.
type Error struct {
	StatusCode int
	Message    string
	Permanent  bool
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("delivery failed: %s", e.Message)
	}
	return fmt.Sprintf("delivery failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// Deliver posts the payload to the webhook endpoint. A 4xx response
// other than 429 is permanent and aborts immediately; 429, 5xx, and
// network errors are retried with exponential backoff until MaxRetries
// is exhausted, at which point the last error is returned. The returned
// attempt count includes the first try.
//
// Every request carries the message identifier as an idempotency key so
// the receiver can de-duplicate repeats after an ambiguous failure.
func (c *Client) Deliver(ctx context.Context, p *email.Payload) (int, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		attempts++
		err := c.post(ctx, p.MessageID, body)
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		var dErr *Error
		if !errors.As(err, &dErr) {
			return attempts, err
		}
		if dErr.Permanent {
			return attempts, err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := backoffDelay(c.cfg.BaseDelay, attempt)
		slog.Info("transient delivery error, retrying",
			"message_id", p.MessageID,
			"status", dErr.StatusCode,
			"attempt", attempt+1,
			"delay", delay,
		)
		if err := sleepWithContext(ctx, delay); err != nil {
			return attempts, fmt.Errorf("retry wait interrupted: %w", err)
		}
	}

	return attempts, fmt.Errorf("delivery failed after %d attempts: %w", attempts, lastErr)
}

// post performs a single HTTP request to the webhook endpoint.
func (c *Client) post(ctx context.Context, messageID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Elektrine-Message-Id", messageID)
	req.Header.Set("Idempotency-Key", messageID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return classifyStatus(resp.StatusCode, string(respBody))
}

// classifyStatus categorizes an HTTP error response for retry decisions:
// 4xx other than 429 is permanent, everything else transient.
func classifyStatus(statusCode int, message string) *Error {
	e := &Error{
		StatusCode: statusCode,
		Message:    message,
	}
	if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
		e.Permanent = true
	}
	return e
}

// backoffDelay returns the pure exponential backoff delay for the given
// attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for d or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
