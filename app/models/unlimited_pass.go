package models

import "time"

// UnlimitedPass suspends voice metering for a user until ExpiresAt. While a
// pass is unexpired neither the daily allowance nor the banked balance is
// touched by consumption.
type UnlimitedPass struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex" json:"user_id"`
	ExpiresAt time.Time `gorm:"type:timestamp;not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the pass is unexpired at the given time.
func (p *UnlimitedPass) IsActive(now time.Time) bool {
	return p != nil && now.Before(p.ExpiresAt)
}
