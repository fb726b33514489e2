package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// Trade is an immutable record of an executed fill on a leader's account.
// The composite unique index is the dedupe key absorbing duplicate fills
// from overlapping poll windows. Trades are only ever inserted, never
// updated or deleted.
type Trade struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	UserID       uint `gorm:"not null;uniqueIndex:idx_trade_fill" json:"user_id"`
	ConnectionID uint `gorm:"not null;uniqueIndex:idx_trade_fill" json:"connection_id"`

	AccountNumber string          `gorm:"size:60" json:"account_number"`
	Symbol        string          `gorm:"size:50;not null;uniqueIndex:idx_trade_fill" json:"symbol"`
	Side          string          `gorm:"size:10;not null;uniqueIndex:idx_trade_fill" json:"side"`
	Quantity      decimal.Decimal `gorm:"type:numeric;not null;uniqueIndex:idx_trade_fill" json:"quantity"`
	FillPrice     decimal.Decimal `gorm:"type:numeric;not null" json:"fill_price"`
	FilledAt      time.Time       `gorm:"not null;uniqueIndex:idx_trade_fill" json:"filled_at"`

	CreatedAt time.Time `json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}

// Value returns the notional value of the fill.
func (t *Trade) Value() decimal.Decimal {
	return t.Quantity.Mul(t.FillPrice)
}
