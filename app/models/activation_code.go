package models

import "time"

// ActivationCode is a single-use code redeemable for a subscription plan,
// used for B2B/academy seats sold outside the payment provider.
type ActivationCode struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Code             string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	PlanName         string     `gorm:"type:varchar(50);not null" json:"plan_name"`
	IsRedeemed       bool       `gorm:"default:false;index" json:"is_redeemed"`
	RedeemedByUserID *uint      `gorm:"default:null" json:"redeemed_by_user_id,omitempty"`
	RedeemedAt       *time.Time `gorm:"type:timestamp;default:null" json:"redeemed_at,omitempty"`
	ExpiresAt        *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsRedeemable reports whether the code can still be redeemed at the given time.
func (ac *ActivationCode) IsRedeemable(now time.Time) bool {
	if ac.IsRedeemed {
		return false
	}
	if ac.ExpiresAt != nil && now.After(*ac.ExpiresAt) {
		return false
	}
	return true
}
