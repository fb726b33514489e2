package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"copytrader/src/model"
)

const (
	headerSignature = "X-Webhook-Signature"
	headerEventType = "X-Webhook-Event"
)

type webhookStore interface {
	ListActiveForEvent(ctx context.Context, eventType string) ([]model.Webhook, error)
	MarkTriggered(ctx context.Context, id uint, at time.Time) error
	IncrementFailures(ctx context.Context, id uint) error
	CreateDelivery(ctx context.Context, delivery *model.WebhookDelivery) error
	ResolveDelivery(ctx context.Context, id uint, status string, responseCode *int, responseBody string, deliveredAt time.Time) error
}

// Envelope is the JSON body posted to registered webhooks.
type Envelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// WebhookDispatcher delivers event envelopes to registered endpoints. Each
// attempt is journaled: a pending delivery row goes in before the network
// call and is resolved to success or failed afterwards.
type WebhookDispatcher struct {
	store       webhookStore
	client      *resty.Client
	concurrency int
	now         func() time.Time
}

func NewWebhookDispatcher(store webhookStore, timeout time.Duration, concurrency int) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &WebhookDispatcher{store: store, client: client, concurrency: concurrency, now: time.Now}
}

// Sign computes the hex HMAC-SHA256 of the payload under the webhook
// secret. Receivers recompute it over the raw body to authenticate.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// DispatchEvent delivers the event to every active matching webhook, at
// most concurrency deliveries in flight. One endpoint's failure or slowness
// never affects the others; the aggregate failure count is returned for
// observability.
func (d *WebhookDispatcher) DispatchEvent(ctx context.Context, eventType string, data interface{}) (delivered, failed int) {
	webhooks, err := d.store.ListActiveForEvent(ctx, eventType)
	if err != nil {
		logger.WithError(err).WithField("event", eventType).Error("Failed to list webhooks for event")
		return 0, 0
	}
	if len(webhooks) == 0 {
		return 0, 0
	}

	envelope := Envelope{Event: eventType, Timestamp: d.now().UTC(), Data: data}
	payload, err := json.Marshal(envelope)
	if err != nil {
		logger.WithError(err).WithField("event", eventType).Error("Failed to marshal webhook envelope")
		return 0, 0
	}

	var mu sync.Mutex
	group := &errgroup.Group{}
	group.SetLimit(d.concurrency)
	for i := range webhooks {
		webhook := &webhooks[i]
		group.Go(func() error {
			ok := d.deliverOne(ctx, webhook, eventType, payload)
			mu.Lock()
			if ok {
				delivered++
			} else {
				failed++
			}
			mu.Unlock()
			// Always nil: sibling deliveries must not be cancelled.
			return nil
		})
	}
	_ = group.Wait()

	logger.WithFields(map[string]interface{}{
		"event":     eventType,
		"delivered": delivered,
		"failed":    failed,
	}).Info("Webhook dispatch complete")

	return delivered, failed
}

func (d *WebhookDispatcher) deliverOne(ctx context.Context, webhook *model.Webhook, eventType string, payload []byte) bool {
	record := &model.WebhookDelivery{
		WebhookID: webhook.ID,
		EventType: eventType,
		Payload:   string(payload),
		Status:    model.WebhookDeliveryPending,
	}
	// No journal row, no network attempt.
	if err := d.store.CreateDelivery(ctx, record); err != nil {
		return false
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader(headerSignature, Sign(webhook.Secret, payload)).
		SetHeader(headerEventType, eventType).
		SetBody(payload).
		Post(webhook.URL)

	now := d.now()

	if err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"webhook_id": webhook.ID,
			"url":        webhook.URL,
		}).Warn("Webhook delivery failed")

		d.resolve(ctx, record.ID, model.WebhookDeliveryFailed, nil, err.Error(), now)
		d.noteFailure(ctx, webhook.ID)
		return false
	}

	code := resp.StatusCode()
	body := truncate(string(resp.Body()), 2048)

	if code < 200 || code > 299 {
		logger.WithFields(map[string]interface{}{
			"webhook_id": webhook.ID,
			"url":        webhook.URL,
			"status":     code,
		}).Warn("Webhook endpoint rejected delivery")

		d.resolve(ctx, record.ID, model.WebhookDeliveryFailed, &code, body, now)
		d.noteFailure(ctx, webhook.ID)
		return false
	}

	d.resolve(ctx, record.ID, model.WebhookDeliverySuccess, &code, body, now)
	if err := d.store.MarkTriggered(ctx, webhook.ID, now); err != nil {
		logger.WithError(err).WithField("webhook_id", webhook.ID).Warn("Failed to stamp webhook trigger time")
	}
	return true
}

func (d *WebhookDispatcher) resolve(ctx context.Context, deliveryID uint, status string, code *int, body string, at time.Time) {
	if err := d.store.ResolveDelivery(ctx, deliveryID, status, code, body, at); err != nil {
		logger.WithError(err).WithField("delivery_id", deliveryID).Error("Failed to resolve delivery record")
	}
}

func (d *WebhookDispatcher) noteFailure(ctx context.Context, webhookID uint) {
	if err := d.store.IncrementFailures(ctx, webhookID); err != nil {
		logger.WithError(err).WithField("webhook_id", webhookID).Warn("Failed to increment webhook failures")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
