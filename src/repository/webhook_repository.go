package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"copytrader/src/database"
	"copytrader/src/model"
)

// WebhookRepository persists webhook registrations and their delivery
// attempts.
type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository() *WebhookRepository {
	return &WebhookRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *WebhookRepository) WithDB(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create inserts a webhook registration.
func (r *WebhookRepository) Create(ctx context.Context, webhook *model.Webhook) error {
	err := r.db.WithContext(ctx).Create(webhook).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "WebhookRepository",
			"op":       "Create",
			"owner_id": webhook.OwnerID,
		}).WithError(err).Error("Failed to create webhook")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "WebhookRepository",
		"op":         "Create",
		"webhook_id": webhook.ID,
	}).Info("Webhook registered")

	return nil
}

// FindByID returns (nil, nil) when the webhook does not exist.
func (r *WebhookRepository) FindByID(ctx context.Context, id uint) (*model.Webhook, error) {
	var webhook model.Webhook

	err := r.db.WithContext(ctx).First(&webhook, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "WebhookRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch webhook")
		return nil, err
	}

	return &webhook, nil
}

// ListByOwner lists a user's registrations, active and inactive.
func (r *WebhookRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Webhook, error) {
	var webhooks []model.Webhook

	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&webhooks).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "WebhookRepository",
			"op":       "ListByOwner",
			"owner_id": ownerID,
		}).WithError(err).Error("Failed to list webhooks")
		return nil, err
	}

	return webhooks, nil
}

// ListActiveForEvent returns the active webhooks subscribed to the event
// type. The subscribed-set match happens in Go because the set is stored as
// a comma-separated column.
func (r *WebhookRepository) ListActiveForEvent(ctx context.Context, eventType string) ([]model.Webhook, error) {
	var webhooks []model.Webhook

	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&webhooks).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "WebhookRepository",
			"op":    "ListActiveForEvent",
			"event": eventType,
		}).WithError(err).Error("Failed to list active webhooks")
		return nil, err
	}

	matched := webhooks[:0]
	for i := range webhooks {
		if webhooks[i].SubscribesTo(eventType) {
			matched = append(matched, webhooks[i])
		}
	}
	return matched, nil
}

// Deactivate flips the active flag off; registrations are never hard
// deleted so delivery history keeps its parent row.
func (r *WebhookRepository) Deactivate(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).
		Model(&model.Webhook{}).
		Where("id = ?", id).
		Update("active", false).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WebhookRepository",
			"op":   "Deactivate",
			"id":   id,
		}).WithError(err).Error("Failed to deactivate webhook")
		return err
	}
	return nil
}

// MarkTriggered stamps a successful delivery on the registration.
func (r *WebhookRepository) MarkTriggered(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Webhook{}).
		Where("id = ?", id).
		Update("last_triggered_at", at).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WebhookRepository",
			"op":   "MarkTriggered",
			"id":   id,
		}).WithError(err).Error("Failed to mark webhook triggered")
		return err
	}
	return nil
}

// IncrementFailures bumps the registration's failure counter. Retry
// scheduling based on the counter is a collaborator concern.
func (r *WebhookRepository) IncrementFailures(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).
		Model(&model.Webhook{}).
		Where("id = ?", id).
		Update("failure_count", gorm.Expr("failure_count + 1")).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WebhookRepository",
			"op":   "IncrementFailures",
			"id":   id,
		}).WithError(err).Error("Failed to increment webhook failures")
		return err
	}
	return nil
}

// CreateDelivery inserts the pending delivery row. Called before the
// network attempt so a crash mid-delivery still leaves an auditable record.
func (r *WebhookRepository) CreateDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	err := r.db.WithContext(ctx).Create(delivery).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "WebhookRepository",
			"op":         "CreateDelivery",
			"webhook_id": delivery.WebhookID,
		}).WithError(err).Error("Failed to create delivery record")
		return err
	}
	return nil
}

// ResolveDelivery moves a pending delivery to its terminal state.
func (r *WebhookRepository) ResolveDelivery(ctx context.Context, id uint, status string, responseCode *int, responseBody string, deliveredAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.WebhookDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"response_code": responseCode,
			"response_body": responseBody,
			"delivered_at":  deliveredAt,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "WebhookRepository",
			"op":     "ResolveDelivery",
			"id":     id,
			"status": status,
		}).WithError(err).Error("Failed to resolve delivery record")
		return err
	}
	return nil
}
