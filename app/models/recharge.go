package models

import "time"

const (
	RechargeTypeTurbo       = "turbo"
	RechargeTypeBank100     = "bank_100"
	RechargeTypeUnlimited30 = "unlimited_30"
)

const (
	RechargeStatusPending = "pending"
	RechargeStatusApplied = "applied"
)

// Recharge is the audit record of one purchased quota top-up. The balance
// effect lives in VoiceUsage/UnlimitedPass; this row only records what was
// granted and when.
type Recharge struct {
	ID            string     `gorm:"primaryKey;type:char(36)" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	Type          string     `gorm:"type:varchar(20);not null" json:"type"`
	AmountSeconds int64      `gorm:"not null;default:0" json:"amount_seconds"`
	ExpiresAt     *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	AppliedAt     *time.Time `gorm:"type:timestamp;default:null" json:"applied_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValidRechargeType reports whether the given type is a known recharge SKU.
func IsValidRechargeType(t string) bool {
	switch t {
	case RechargeTypeTurbo, RechargeTypeBank100, RechargeTypeUnlimited30:
		return true
	default:
		return false
	}
}
