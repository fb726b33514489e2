package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sizing strategy identifiers stored on the follower edge.
const (
	SizingFixedRatio = "fixed_ratio"
	SizingKelly      = "kelly"
	SizingRiskParity = "risk_parity"
	SizingMomentum   = "momentum"
)

// FollowerRelationship is the (leader, follower) edge. Exactly one row per
// pair. AutoCopy and AlertOnly are independent preferences: a follower can
// receive alerts without copying and vice versa. The edge is managed by the
// profile service; this core only reads it to resolve fan-out targets.
type FollowerRelationship struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	LeaderID   uint `gorm:"not null;uniqueIndex:idx_leader_follower" json:"leader_id"`
	FollowerID uint `gorm:"not null;uniqueIndex:idx_leader_follower" json:"follower_id"`

	AutoCopy       bool `gorm:"not null;default:false" json:"auto_copy"`
	AlertOnly      bool `gorm:"not null;default:false" json:"alert_only"`
	AutoCopyPaused bool `gorm:"not null;default:false" json:"auto_copy_paused"`

	// SizingStrategy selects how copy quantities are derived for this edge.
	SizingStrategy string          `gorm:"size:30;not null;default:fixed_ratio" json:"sizing_strategy"`
	SizingRatio    decimal.Decimal `gorm:"type:numeric;default:1" json:"sizing_ratio"`

	// AllocatedCapital is the capital the follower committed to copying this
	// leader. Position-size fractions are expressed against it.
	AllocatedCapital decimal.Decimal `gorm:"type:numeric;default:0" json:"allocated_capital"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FollowerRelationship) TableName() string {
	return "follower_relationships"
}

// CopiesTrades reports whether the edge currently derives copy orders.
func (f *FollowerRelationship) CopiesTrades() bool {
	return f.AutoCopy && !f.AutoCopyPaused
}

// WantsAlerts reports whether the follower should be included in the
// notification fan-out for the leader's trades.
func (f *FollowerRelationship) WantsAlerts() bool {
	return f.AlertOnly || f.AutoCopy
}
