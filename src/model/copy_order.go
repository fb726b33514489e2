package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CopyOrderStatusQueued    = "queued"
	CopyOrderStatusFilled    = "filled"
	CopyOrderStatusCancelled = "cancelled"
	CopyOrderStatusFailed    = "failed"
)

// CopyOrder is a derived instruction to replicate a leader's fill for one
// follower. Lifecycle: queued -> filled | cancelled | failed. Cancellation
// is only legal from queued; filled and failed are terminal and set by the
// external execution collaborator.
type CopyOrder struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	FollowerID    uint `gorm:"not null;index" json:"follower_id"`
	LeaderTradeID uint `gorm:"not null;index" json:"leader_trade_id"`

	Symbol   string          `gorm:"size:50;not null" json:"symbol"`
	Side     string          `gorm:"size:10;not null" json:"side"`
	Quantity decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`

	Status string `gorm:"size:20;not null;default:queued;index" json:"status"`

	// Adjusted marks orders whose quantity was clamped down by a guardrail.
	Adjusted     bool   `gorm:"not null;default:false" json:"adjusted"`
	AdjustReason string `gorm:"size:255" json:"adjust_reason,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	FilledAt  *time.Time `json:"filled_at,omitempty"`

	LeaderTrade *Trade `gorm:"foreignKey:LeaderTradeID" json:"leader_trade,omitempty"`
}

func (CopyOrder) TableName() string {
	return "copy_orders"
}

// CopyRejection records a guardrail rejection that produced no copy order.
// Kept for observability and analytics only.
type CopyRejection struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	FollowerID    uint      `gorm:"not null;index" json:"follower_id"`
	LeaderTradeID uint      `gorm:"not null;index" json:"leader_trade_id"`
	Symbol        string    `gorm:"size:50;not null" json:"symbol"`
	Reason        string    `gorm:"size:255;not null" json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

func (CopyRejection) TableName() string {
	return "copy_rejections"
}
