package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"copytrader/src/database"
	"copytrader/src/model"
)

// GuardrailRepository reads and upserts per-follower risk limits. The
// engine only reads; writes come from the settings surface.
type GuardrailRepository struct {
	db *gorm.DB
}

func NewGuardrailRepository() *GuardrailRepository {
	return &GuardrailRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *GuardrailRepository) WithDB(db *gorm.DB) *GuardrailRepository {
	return &GuardrailRepository{db: db}
}

// FindApplicable resolves the guardrail for (follower, symbol): the
// symbol-specific row wins, the global row (symbol IS NULL) is the
// fallback. Returns (nil, nil) when neither exists.
func (r *GuardrailRepository) FindApplicable(ctx context.Context, followerID uint, symbol string) (*model.Guardrail, error) {
	var guardrails []model.Guardrail

	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND (symbol = ? OR symbol IS NULL)", followerID, symbol).
		Find(&guardrails).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "GuardrailRepository",
			"op":          "FindApplicable",
			"follower_id": followerID,
			"symbol":      symbol,
		}).WithError(err).Error("Failed to fetch guardrails")
		return nil, err
	}

	var global *model.Guardrail
	for i := range guardrails {
		if guardrails[i].Symbol != nil {
			return &guardrails[i], nil
		}
		global = &guardrails[i]
	}
	return global, nil
}

// Upsert replaces the guardrail for the row's (follower, symbol) scope.
// Delete-then-create inside one transaction keeps the at-most-one-row
// invariant without relying on database-specific upsert syntax for the
// nullable symbol column.
func (r *GuardrailRepository) Upsert(ctx context.Context, guardrail *model.Guardrail) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := tx.Where("follower_id = ?", guardrail.FollowerID)
		if guardrail.Symbol == nil {
			scope = scope.Where("symbol IS NULL")
		} else {
			scope = scope.Where("symbol = ?", *guardrail.Symbol)
		}

		if err := scope.Delete(&model.Guardrail{}).Error; err != nil {
			logger.WithError(err).Error("Failed to delete existing guardrail")
			return err
		}

		if err := tx.Create(guardrail).Error; err != nil {
			logger.WithError(err).Error("Failed to create guardrail")
			return err
		}
		return nil
	})
}
