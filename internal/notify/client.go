// Package notify posts correction-request decisions to an external webhook
// so chat integrations can announce them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Decision is the payload sent for every approve/reject/reopen transition.
type Decision struct {
	RequestID  string `json:"request_id"`
	Applicant  string `json:"applicant"`
	UserID     string `json:"user_id"`
	TargetDate string `json:"target_date"`
	Status     string `json:"status"`
	DecidedAt  string `json:"decided_at"`
}

// Client delivers decision notifications over HTTP.
type Client struct {
	WebhookURL string
	HTTP       *http.Client
	Skip       bool
}

// New creates a client. When skip is set (dev, tests) every send is a no-op.
func New(webhookURL string, skip bool) *Client {
	return &Client{
		WebhookURL: webhookURL,
		Skip:       skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers one decision. Failures are returned, never retried here;
// the worker decides whether a redelivery is worth it.
func (c *Client) Send(ctx context.Context, d Decision) error {
	if c.Skip || c.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Health probes the webhook endpoint so the worker can warn at startup.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip || c.WebhookURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.WebhookURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook unhealthy: %s", resp.Status)
	}
	return nil
}
