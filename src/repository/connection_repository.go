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

// ConnectionRepository handles broker connection reads and watermark
// advancement. Connection lifecycle status is owned by the connection
// management service; the poller only moves the cursor.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository() *ConnectionRepository {
	return &ConnectionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *ConnectionRepository) WithDB(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// ListActive returns every connection eligible for polling.
func (r *ConnectionRepository) ListActive(ctx context.Context) ([]model.BrokerConnection, error) {
	var connections []model.BrokerConnection

	err := r.db.WithContext(ctx).
		Where("status = ?", model.ConnectionStatusActive).
		Order("id ASC").
		Find(&connections).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConnectionRepository",
			"op":   "ListActive",
		}).WithError(err).Error("Failed to list active connections")
		return nil, err
	}

	return connections, nil
}

// FindByID returns (nil, nil) when the connection does not exist.
func (r *ConnectionRepository) FindByID(ctx context.Context, id uint) (*model.BrokerConnection, error) {
	var connection model.BrokerConnection

	err := r.db.WithContext(ctx).First(&connection, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "ConnectionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch connection")
		return nil, err
	}

	return &connection, nil
}

// AdvanceWatermark moves the poll cursor forward. The WHERE clause refuses
// to move it backwards so a delayed tick can never rewind a newer cursor.
func (r *ConnectionRepository) AdvanceWatermark(ctx context.Context, id uint, watermark time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.BrokerConnection{}).
		Where("id = ? AND (last_poll_watermark IS NULL OR last_poll_watermark <= ?)", id, watermark).
		Update("last_poll_watermark", watermark).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "ConnectionRepository",
			"op":        "AdvanceWatermark",
			"id":        id,
			"watermark": watermark,
		}).WithError(err).Error("Failed to advance watermark")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "ConnectionRepository",
		"op":        "AdvanceWatermark",
		"id":        id,
		"watermark": watermark,
	}).Debug("Watermark advanced")

	return nil
}

// Create inserts a connection. Used by seeding and tests; production rows
// arrive through the connection-linking flow.
func (r *ConnectionRepository) Create(ctx context.Context, connection *model.BrokerConnection) error {
	err := r.db.WithContext(ctx).Create(connection).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConnectionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create connection")
		return err
	}
	return nil
}

// UpdateStatus flips the lifecycle status, e.g. to error after repeated
// fetch failures.
func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	err := r.db.WithContext(ctx).
		Model(&model.BrokerConnection{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ConnectionRepository",
			"op":     "UpdateStatus",
			"id":     id,
			"status": status,
		}).WithError(err).Error("Failed to update connection status")
		return err
	}
	return nil
}
