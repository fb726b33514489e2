package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Guardrail is a per-follower risk limit, optionally scoped to a symbol.
// A nil Symbol means the guardrail applies globally; a symbol-specific row
// takes precedence over the global one. At most one row exists per
// (follower, symbol) pair.
type Guardrail struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	FollowerID uint    `gorm:"not null;uniqueIndex:idx_guardrail_scope" json:"follower_id"`
	Symbol     *string `gorm:"size:50;uniqueIndex:idx_guardrail_scope" json:"symbol,omitempty"`

	// MaxPositionPct caps a single position at a percentage of allocated
	// capital, 0-100. Zero means no cap.
	MaxPositionPct decimal.Decimal `gorm:"type:numeric;default:0" json:"max_position_pct"`

	// MaxPositionSize caps the absolute quantity of a single copy order.
	// Zero means no cap.
	MaxPositionSize decimal.Decimal `gorm:"type:numeric;default:0" json:"max_position_size"`

	MaxDailyLoss decimal.Decimal `gorm:"type:numeric;default:0" json:"max_daily_loss"`
	MaxDrawdown  decimal.Decimal `gorm:"type:numeric;default:0" json:"max_drawdown"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Guardrail) TableName() string {
	return "guardrails"
}

// IsGlobal reports whether the guardrail applies to every symbol.
func (g *Guardrail) IsGlobal() bool {
	return g.Symbol == nil
}
