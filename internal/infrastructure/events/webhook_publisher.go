package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/config"
)

// WebhookPublisher delivers violation alerts to a configured HTTP endpoint.
// Payloads are signed with HMAC-SHA256 when a shared secret is set.
type WebhookPublisher struct {
	client  *http.Client
	cfg     config.AlertsConfig
	logger  *zap.Logger
	backoff time.Duration
}

// WebhookPayload is the envelope POSTed to the endpoint.
type WebhookPayload struct {
	DeliveryID uuid.UUID       `json:"delivery_id"`
	Kind       string          `json:"kind"`
	Timestamp  time.Time       `json:"timestamp"`
	Alert      violation.Alert `json:"alert"`
}

// NewWebhookPublisher creates a webhook publisher from the alerts config.
func NewWebhookPublisher(cfg config.AlertsConfig, logger *zap.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		client:  &http.Client{Timeout: cfg.WebhookTimeout},
		cfg:     cfg,
		logger:  logger,
		backoff: time.Second,
	}
}

// Publish POSTs one alert, retrying transient failures with exponential
// backoff.
func (p *WebhookPublisher) Publish(ctx context.Context, alert violation.Alert) error {
	if p.cfg.WebhookURL == "" {
		return nil
	}

	payload := WebhookPayload{
		DeliveryID: uuid.New(),
		Kind:       "excavation_violation",
		Timestamp:  time.Now().UTC(),
		Alert:      alert,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.NewInternalError("failed to marshal webhook payload").WithCause(err)
	}

	var lastErr error
	delay := p.backoff
	for attempt := 1; attempt <= p.cfg.WebhookRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		status, err := p.send(ctx, body, payload.DeliveryID)
		if err == nil {
			return nil
		}
		lastErr = err

		if status > 0 && !retryableStatus(status) {
			p.logger.Error("webhook rejected alert",
				zap.Int("status", status),
				zap.String("area_id", alert.AreaID.String()))
			return err
		}

		p.logger.Warn("webhook delivery attempt failed",
			zap.Int("attempt", attempt),
			zap.String("area_id", alert.AreaID.String()),
			zap.Error(err))
	}

	return errors.NewInternalError("webhook delivery failed after retries").WithCause(lastErr)
}

func (p *WebhookPublisher) send(ctx context.Context, body []byte, deliveryID uuid.UUID) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, errors.NewInternalError("failed to create webhook request").WithCause(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "excavation-monitor/1.0")
	req.Header.Set("X-Delivery-ID", deliveryID.String())

	if p.cfg.WebhookSecret != "" {
		req.Header.Set("X-Signature-SHA256", signPayload(body, p.cfg.WebhookSecret))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, errors.NewExternalError("alert-webhook", "request failed").WithCause(err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, errors.NewExternalError("alert-webhook",
		fmt.Sprintf("webhook returned status %d", resp.StatusCode))
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}
