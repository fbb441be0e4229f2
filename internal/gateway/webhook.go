package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookGateway delivers messages through a local bridge process that holds
// the actual messaging-network session. The bridge exposes a send endpoint
// and a health endpoint; anything beyond that is the bridge's problem.
type WebhookGateway struct {
	client    *http.Client
	logger    *zap.Logger
	sendURL   string
	healthURL string
}

type WebhookConfig struct {
	SendURL   string
	HealthURL string
	Timeout   time.Duration // per-request timeout, default 30s
}

// sendRequest is the JSON body posted to the bridge.
type sendRequest struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	MediaPath string `json:"media_path,omitempty"`
}

// NewWebhookGateway creates a gateway backed by an HTTP bridge.
func NewWebhookGateway(cfg WebhookConfig, logger *zap.Logger) *WebhookGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WebhookGateway{
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		sendURL:   cfg.SendURL,
		healthURL: cfg.HealthURL,
	}
}

// Ready probes the bridge health endpoint. A missing health URL is treated
// as ready so a minimal bridge still works.
func (g *WebhookGateway) Ready() bool {
	if g.healthURL == "" {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Send posts the message to the bridge send endpoint.
func (g *WebhookGateway) Send(ctx context.Context, recipient, body, mediaPath string) error {
	if !g.Ready() {
		return ErrNotReady
	}

	payload, err := json.Marshal(sendRequest{
		Recipient: recipient,
		Body:      body,
		MediaPath: mediaPath,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Courier/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, string(respBody))
	}

	g.logger.Debug("message delivered via bridge",
		zap.String("recipient", recipient),
		zap.Int("status_code", resp.StatusCode),
	)
	return nil
}
