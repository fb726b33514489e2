package model

import (
	"strings"
	"time"
)

const (
	WebhookDeliveryPending = "pending"
	WebhookDeliverySuccess = "success"
	WebhookDeliveryFailed  = "failed"
)

// Webhook is a registered endpoint owned by a follower or leader. The HMAC
// secret is write-once: it is generated at registration, returned in that
// response only, and never exposed again.
type Webhook struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	OwnerID uint   `gorm:"not null;index" json:"owner_id"`
	URL     string `gorm:"size:2048;not null" json:"url"`

	// Events is the subscribed event-type set, stored comma-separated,
	// e.g. "TRADE_FILLED,COPY_ORDER_CANCELLED".
	Events string `gorm:"size:512;not null" json:"events"`

	Secret string `gorm:"size:128;not null" json:"-"`
	Active bool   `gorm:"not null;default:true;index" json:"active"`

	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	FailureCount    int        `gorm:"not null;default:0" json:"failure_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Webhook) TableName() string {
	return "webhooks"
}

// EventList splits the stored event set.
func (w *Webhook) EventList() []string {
	if w.Events == "" {
		return nil
	}
	parts := strings.Split(w.Events, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SubscribesTo reports whether the webhook wants the given event type.
func (w *Webhook) SubscribesTo(eventType string) bool {
	for _, e := range w.EventList() {
		if strings.EqualFold(e, eventType) {
			return true
		}
	}
	return false
}

// WebhookDelivery is one delivery attempt for one (webhook, event) pair.
// The row is created in pending state before the network call so a crash
// mid-delivery still leaves an auditable record; it must always resolve to
// success or failed once the attempt returns or times out.
type WebhookDelivery struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	WebhookID uint   `gorm:"not null;index" json:"webhook_id"`
	EventType string `gorm:"size:100;not null" json:"event_type"`

	// Payload is the JSON envelope snapshot that was (or would be) sent.
	Payload string `gorm:"type:text" json:"payload"`

	Status       string `gorm:"size:20;not null;default:pending;index" json:"status"`
	ResponseCode *int   `json:"response_code,omitempty"`
	ResponseBody string `gorm:"size:2048" json:"response_body,omitempty"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
