package model

import "time"

// DeviceToken is a push registration for one of a user's devices. Tokens the
// provider reports as no longer registered are deactivated so dead endpoints
// are not retried.
type DeviceToken struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   uint   `gorm:"not null;index" json:"user_id"`
	Token    string `gorm:"size:512;not null;uniqueIndex" json:"token"`
	Platform string `gorm:"size:20" json:"platform"` // ios | android | web
	Active   bool   `gorm:"not null;default:true;index" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DeviceToken) TableName() string {
	return "device_tokens"
}
