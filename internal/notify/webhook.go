// Package notify dispatches auth event notifications to a configured webhook.
// Dispatch is fire-and-forget: a slow or broken receiver never delays a login.
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
)

const defaultTimeout = 10 * time.Second

// Event is the payload posted to the webhook.
type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier dispatches events. Implementations must not block the caller.
type Notifier interface {
	Dispatch(ctx context.Context, e Event)
}

// WebhookClient posts events to a single webhook URL.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

// NewWebhookClient returns a client posting to url.
func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Dispatch posts the event in a background goroutine. Failures are logged and
// dropped; the webhook is advisory, not part of the auth contract.
func (c *WebhookClient) Dispatch(_ context.Context, e Event) {
	go func() {
		if err := c.post(e); err != nil {
			slog.Warn("notify dispatch failed", "type", e.Type, "error", err)
		}
	}()
}

func (c *WebhookClient) post(e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: webhook status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// Nop is a Notifier that drops every event. Used when no webhook is configured.
type Nop struct{}

func (Nop) Dispatch(context.Context, Event) {}
