package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"copytrader/src/database"
	"copytrader/src/model"
)

// DeviceTokenRepository resolves push registration tokens for users.
type DeviceTokenRepository struct {
	db *gorm.DB
}

func NewDeviceTokenRepository() *DeviceTokenRepository {
	return &DeviceTokenRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *DeviceTokenRepository) WithDB(db *gorm.DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// ListActiveByUsers returns the active tokens for the given users, grouped
// by user.
func (r *DeviceTokenRepository) ListActiveByUsers(ctx context.Context, userIDs []uint) (map[uint][]model.DeviceToken, error) {
	result := make(map[uint][]model.DeviceToken, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var tokens []model.DeviceToken
	err := r.db.WithContext(ctx).
		Where("user_id IN ? AND active = ?", userIDs, true).
		Find(&tokens).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "DeviceTokenRepository",
			"op":    "ListActiveByUsers",
			"users": len(userIDs),
		}).WithError(err).Error("Failed to list device tokens")
		return nil, err
	}

	for i := range tokens {
		result[tokens[i].UserID] = append(result[tokens[i].UserID], tokens[i])
	}
	return result, nil
}

// Deactivate turns off a token the provider reported as dead so it is not
// retried on future sends.
func (r *DeviceTokenRepository) Deactivate(ctx context.Context, token string) error {
	err := r.db.WithContext(ctx).
		Model(&model.DeviceToken{}).
		Where("token = ?", token).
		Update("active", false).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "DeviceTokenRepository",
			"op":   "Deactivate",
		}).WithError(err).Error("Failed to deactivate device token")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "DeviceTokenRepository",
		"op":   "Deactivate",
	}).Info("Dead device token deactivated")

	return nil
}

// Register upserts a device token for a user.
func (r *DeviceTokenRepository) Register(ctx context.Context, token *model.DeviceToken) error {
	err := r.db.WithContext(ctx).
		Where("token = ?", token.Token).
		Assign(map[string]interface{}{
			"user_id":  token.UserID,
			"platform": token.Platform,
			"active":   true,
		}).
		FirstOrCreate(token).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "DeviceTokenRepository",
			"op":      "Register",
			"user_id": token.UserID,
		}).WithError(err).Error("Failed to register device token")
		return err
	}
	return nil
}
