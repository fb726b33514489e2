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

// CopyOrderRepository persists derived copy orders and their rejections.
type CopyOrderRepository struct {
	db *gorm.DB
}

func NewCopyOrderRepository() *CopyOrderRepository {
	return &CopyOrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *CopyOrderRepository) WithDB(db *gorm.DB) *CopyOrderRepository {
	return &CopyOrderRepository{db: db}
}

// Create inserts a new copy order. The given order is updated with the
// generated ID and timestamps.
func (r *CopyOrderRepository) Create(ctx context.Context, order *model.CopyOrder) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "CopyOrderRepository",
		"op":          "Create",
		"follower_id": order.FollowerID,
		"symbol":      order.Symbol,
		"side":        order.Side,
		"qty":         order.Quantity,
	}).Debug("Creating copy order")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CopyOrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create copy order")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "CopyOrderRepository",
		"op":       "Create",
		"order_id": order.ID,
		"adjusted": order.Adjusted,
	}).Info("Copy order created")

	return nil
}

// FindByID returns (nil, nil) when the copy order does not exist.
func (r *CopyOrderRepository) FindByID(ctx context.Context, id uint) (*model.CopyOrder, error) {
	var order model.CopyOrder

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "CopyOrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch copy order")
		return nil, err
	}

	return &order, nil
}

// TransitionStatus updates the status only when the order is currently in
// fromStatus, returning whether a row changed. The conditional WHERE makes
// concurrent transitions race-safe: exactly one caller wins.
func (r *CopyOrderRepository) TransitionStatus(ctx context.Context, id uint, fromStatus, toStatus string, filledAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"status": toStatus}
	if filledAt != nil {
		updates["filled_at"] = *filledAt
	}

	result := r.db.WithContext(ctx).
		Model(&model.CopyOrder{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CopyOrderRepository",
			"op":   "TransitionStatus",
			"id":   id,
			"from": fromStatus,
			"to":   toStatus,
		}).WithError(result.Error).Error("Failed to transition copy order")
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// OrderSearchOptions filters the copy order listing surface.
type OrderSearchOptions struct {
	FollowerID uint
	Status     *string
	Symbol     *string
	Limit      int
	Offset     int
}

// Search lists copy orders newest first with optional filters.
func (r *CopyOrderRepository) Search(ctx context.Context, options OrderSearchOptions) ([]model.CopyOrder, error) {
	query := r.db.WithContext(ctx).Model(&model.CopyOrder{})

	if options.FollowerID != 0 {
		query = query.Where("follower_id = ?", options.FollowerID)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}

	query = query.Order("created_at DESC, id DESC")
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var orders []model.CopyOrder
	if err := query.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CopyOrderRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search copy orders")
		return nil, err
	}

	return orders, nil
}

// ListFilledForLeader returns the follower's filled copy orders that
// originated from the given leader, newest first, with the leader trade
// preloaded. Feeds the Kelly win-rate estimator.
func (r *CopyOrderRepository) ListFilledForLeader(ctx context.Context, followerID, leaderID uint, limit int) ([]model.CopyOrder, error) {
	if limit <= 0 {
		limit = 100
	}

	var orders []model.CopyOrder
	err := r.db.WithContext(ctx).
		Joins("JOIN trades ON trades.id = copy_orders.leader_trade_id").
		Where("copy_orders.follower_id = ? AND copy_orders.status = ? AND trades.user_id = ?",
			followerID, model.CopyOrderStatusFilled, leaderID).
		Order("copy_orders.filled_at DESC").
		Limit(limit).
		Preload("LeaderTrade").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "CopyOrderRepository",
			"op":          "ListFilledForLeader",
			"follower_id": followerID,
			"leader_id":   leaderID,
		}).WithError(err).Error("Failed to list filled copy orders")
		return nil, err
	}

	return orders, nil
}

// HeldSymbols returns the distinct symbols the follower currently holds via
// filled copy orders. Feeds the risk-parity weighting.
func (r *CopyOrderRepository) HeldSymbols(ctx context.Context, followerID uint) ([]string, error) {
	var symbols []string

	err := r.db.WithContext(ctx).
		Model(&model.CopyOrder{}).
		Distinct("symbol").
		Where("follower_id = ? AND status = ?", followerID, model.CopyOrderStatusFilled).
		Pluck("symbol", &symbols).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "CopyOrderRepository",
			"op":          "HeldSymbols",
			"follower_id": followerID,
		}).WithError(err).Error("Failed to list held symbols")
		return nil, err
	}

	return symbols, nil
}

// RecordRejection keeps a guardrail rejection for observability.
func (r *CopyOrderRepository) RecordRejection(ctx context.Context, rejection *model.CopyRejection) error {
	err := r.db.WithContext(ctx).Create(rejection).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "CopyOrderRepository",
			"op":          "RecordRejection",
			"follower_id": rejection.FollowerID,
		}).WithError(err).Error("Failed to record rejection")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "CopyOrderRepository",
		"op":          "RecordRejection",
		"follower_id": rejection.FollowerID,
		"reason":      rejection.Reason,
	}).Info("Copy rejection recorded")

	return nil
}
