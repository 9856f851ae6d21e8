package models

import "time"

// VoiceUsage is the per-user voice ledger row. All balances are whole
// seconds; minute conversion happens only in HTTP responses. LastUsageDate is
// a UTC calendar date ("2006-01-02") used by the lazy daily reset.
type VoiceUsage struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"uniqueIndex" json:"user_id"`
	DailyLimitSeconds    int64      `gorm:"not null;default:0" json:"daily_limit_seconds"`
	UsedTodaySeconds     int64      `gorm:"not null;default:0" json:"used_today_seconds"`
	LastUsageDate        string     `gorm:"type:varchar(10);not null;default:''" json:"last_usage_date"`
	BankedBalanceSeconds int64      `gorm:"not null;default:0" json:"banked_balance_seconds"`
	TurboBonusSeconds    int64      `gorm:"not null;default:0" json:"turbo_bonus_seconds"`
	TurboExpiresAt       *time.Time `gorm:"type:timestamp;default:null" json:"turbo_expires_at,omitempty"`
	RequestCountTotal    int64      `gorm:"not null;default:0" json:"request_count_total"`
	LifetimeSecondsTotal int64      `gorm:"not null;default:0" json:"lifetime_seconds_total"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EffectiveDailyLimit returns the daily allowance including an unexpired
// turbo bonus.
func (v *VoiceUsage) EffectiveDailyLimit(now time.Time) int64 {
	limit := v.DailyLimitSeconds
	if v.TurboExpiresAt != nil && now.Before(*v.TurboExpiresAt) {
		limit += v.TurboBonusSeconds
	}
	return limit
}

// DailyRemaining returns the unconsumed part of today's allowance, never
// negative.
func (v *VoiceUsage) DailyRemaining(now time.Time) int64 {
	remaining := v.EffectiveDailyLimit(now) - v.UsedTodaySeconds
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UsageDate formats a time as the UTC calendar date stored in LastUsageDate.
func UsageDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
