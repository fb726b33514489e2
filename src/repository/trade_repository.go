package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"copytrader/src/database"
	"copytrader/src/model"
)

// TradeRepository is the trade ledger: idempotent persistence of leader
// fills. Trades are insert-only.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// RecordFill persists a fill. Returns created=false when the ledger already
// holds a trade with the same dedupe key (user, connection, symbol, side,
// quantity, filled-at). Relies on the composite unique index rather than a
// check-then-insert, so concurrent callers racing on the same key cannot
// both insert; the loser observes the conflict and reports a duplicate.
func (r *TradeRepository) RecordFill(ctx context.Context, trade *model.Trade) (created bool, err error) {
	logger.WithFields(map[string]interface{}{
		"repo":      "TradeRepository",
		"op":        "RecordFill",
		"user_id":   trade.UserID,
		"symbol":    trade.Symbol,
		"side":      trade.Side,
		"qty":       trade.Quantity,
		"filled_at": trade.FilledAt,
	}).Debug("Recording fill")

	err = r.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(map[string]interface{}{
				"repo":   "TradeRepository",
				"op":     "RecordFill",
				"symbol": trade.Symbol,
			}).Debug("Duplicate fill absorbed")
			return false, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "RecordFill",
		}).WithError(err).Error("Failed to record fill")
		return false, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "RecordFill",
		"trade_id": trade.ID,
	}).Info("Trade recorded")

	return true, nil
}

// FindByID returns (nil, nil) when the trade does not exist.
func (r *TradeRepository) FindByID(ctx context.Context, id uint) (*model.Trade, error) {
	var trade model.Trade

	err := r.db.WithContext(ctx).First(&trade, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch trade")
		return nil, err
	}

	return &trade, nil
}

// RecentFills returns the latest fills for a symbol across the whole ledger,
// newest first. Feeds the momentum and volatility estimators.
func (r *TradeRepository) RecentFills(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("filled_at DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeRepository",
			"op":     "RecentFills",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch recent fills")
		return nil, err
	}

	return trades, nil
}
