package bus

import "copytrader/src/model"

// TradeFilled is published once per newly recorded leader trade, never for
// duplicates absorbed by the ledger.
type TradeFilled struct {
	UserID       uint        `json:"user_id"`
	ConnectionID uint        `json:"connection_id"`
	Trade        model.Trade `json:"trade"`
}

// CopyOrderQueued is published when the guardrail engine materializes a new
// copy order.
type CopyOrderQueued struct {
	CopyOrder model.CopyOrder `json:"copy_order"`
}

// CopyOrderCancelled is published when a queued copy order is cancelled,
// user- or system-initiated.
type CopyOrderCancelled struct {
	CopyOrder model.CopyOrder `json:"copy_order"`
	Reason    string          `json:"reason,omitempty"`
}

// FollowerAdded is a pass-through domain event relayed to the delivery
// fan-out.
type FollowerAdded struct {
	LeaderID   uint `json:"leader_id"`
	FollowerID uint `json:"follower_id"`
}

// SessionStarted signals that a leader went live; relayed to webhooks and
// session viewers.
type SessionStarted struct {
	LeaderID uint `json:"leader_id"`
}
