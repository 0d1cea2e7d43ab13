// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// maxRetryInterval caps the wait between delivery attempts
const maxRetryInterval = 30 * time.Second

// Event types
const (
	EventCampaignCreated = "campaign_created"
	EventUpdatePosted    = "update_posted"
)

// Event describes a confirmed write
type Event struct {
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id,omitempty"`
	TxHash     string `json:"tx_hash"`
	ContentID  string `json:"content_id,omitempty"`
}

// WebhookPayload is the body posted to every webhook
type WebhookPayload struct {
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// WebhookSender posts write events to the configured webhooks
type WebhookSender struct {
	config     *config.NotificationConfig
	httpClient *http.Client
	logger     *logrus.Entry

	metricsManager *metrics.Manager
}

// NewWebhookSender creates a sender for cfg.WebhookURLs
func NewWebhookSender(cfg *config.NotificationConfig, metricsManager *metrics.Manager) *WebhookSender {
	return &WebhookSender{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger:         utils.ComponentLogger("webhook_sender"),
		metricsManager: metricsManager,
	}
}

// Enabled reports whether any webhook is configured
func (ws *WebhookSender) Enabled() bool {
	return ws != nil && len(ws.config.WebhookURLs) > 0
}

// DeliveryBudget bounds how long Notify can take with every attempt to every
// webhook timing out
func (ws *WebhookSender) DeliveryBudget() time.Duration {
	if !ws.Enabled() {
		return 0
	}
	perWebhook := time.Duration(ws.attempts())*ws.config.Timeout + time.Duration(ws.attempts()-1)*maxRetryInterval
	return time.Duration(len(ws.config.WebhookURLs)) * perWebhook
}

func (ws *WebhookSender) attempts() int {
	if ws.config.RetryAttempts <= 0 {
		return 1
	}
	return ws.config.RetryAttempts
}

// Notify posts event to every webhook. Each webhook is retried on its own;
// the first failure is returned after all have been tried.
func (ws *WebhookSender) Notify(ctx context.Context, event Event) error {
	if !ws.Enabled() {
		return nil
	}

	body, err := json.Marshal(WebhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Source:    "etherfund-dashboard",
		Version:   "1.0",
	})
	if err != nil {
		return utils.WrapError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err)
	}

	var firstErr error
	for _, url := range ws.config.WebhookURLs {
		if err := ws.sendWithRetry(ctx, event.Type, url, body); err != nil {
			ws.logger.WithFields(logrus.Fields{
				"url":   url,
				"event": event.Type,
				"error": err,
			}).Error("Webhook failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (ws *WebhookSender) sendWithRetry(ctx context.Context, eventType, url string, body []byte) error {
	expo := backoff.NewExponentialBackOff()
	if ws.config.RetryDelay > 0 {
		expo.InitialInterval = ws.config.RetryDelay
	}
	expo.MaxInterval = maxRetryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, ws.sendOnce(ctx, url, body)
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(ws.attempts())),
		backoff.WithNotify(func(err error, delay time.Duration) {
			ws.logger.WithFields(logrus.Fields{"url": url, "delay": delay, "error": err}).Warn("Webhook attempt failed, retrying")
		}),
	)

	if ws.metricsManager != nil {
		ws.metricsManager.GetPrometheusMetrics().RecordWebhookDelivery(eventType, metrics.StatusLabel(err))
	}
	return err
}

func (ws *WebhookSender) sendOnce(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(utils.WrapError(utils.ErrCodeConfiguration, "Failed to create webhook request", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "etherfund-dashboard/1.0")
	for key, value := range ws.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := ws.httpClient.Do(req)
	if err != nil {
		return utils.FromContext(err, "Failed to send webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read a bounded slice of the body for the error
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = utils.NewAppError(utils.ErrCodeConnection, "Webhook returned non-success status",
		fmt.Sprintf("status: %d, body: %s", resp.StatusCode, snippet))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}
