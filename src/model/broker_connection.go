package model

import "time"

const (
	ConnectionStatusPending = "pending"
	ConnectionStatusActive  = "active"
	ConnectionStatusRevoked = "revoked"
	ConnectionStatusError   = "error"
)

// BrokerConnection links a leader's brokerage account to the poller.
// Status changes are owned by the connection-management service; this core
// only advances the poll watermark.
type BrokerConnection struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index" json:"user_id"`
	Broker string `gorm:"size:50;not null" json:"broker"` // e.g. "paper", "binance"

	// AuthHandleSealed is the broker authorization handle encrypted at rest.
	// See security.Sealer.
	AuthHandleSealed string `gorm:"column:auth_handle;type:text" json:"-"`

	Status string `gorm:"size:20;not null;default:pending;index" json:"status"`

	// LastPollWatermark is the cursor for incremental polling. Nil means the
	// connection has never been polled.
	LastPollWatermark *time.Time `json:"last_poll_watermark,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BrokerConnection) TableName() string {
	return "broker_connections"
}
