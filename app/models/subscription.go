package models

import "time"

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusExpired  = "expired"
)

// Subscription is the local mirror of a paid (or trial) subscription. Rows are
// never deleted: canceled and expired rows stay behind for audit and feed no
// entitlement.
type Subscription struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;index" json:"user_id"`
	PlanName           string     `gorm:"type:varchar(50);not null;index" json:"plan_name"`
	Status             string     `gorm:"type:varchar(32);not null;default:'active';index:idx_subscriptions_status_period_end,priority:1" json:"status"`
	BillingInterval    string     `gorm:"type:varchar(16);not null;default:'month'" json:"billing_interval"`
	CurrentPeriodStart time.Time  `gorm:"type:timestamp;not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `gorm:"type:timestamp;not null;index:idx_subscriptions_status_period_end,priority:2" json:"current_period_end"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt         *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	PaymentProvider    string     `gorm:"type:varchar(20);not null;default:''" json:"payment_provider"`
	ProviderPaymentID  string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_payment_id"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether this row can feed entitlements at all.
// past_due keeps access until the sweep expires it, matching provider grace
// period semantics.
func (s *Subscription) IsEntitling() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status may never change again. Terminal
// states are sticky: a late "paid" event must not resurrect the row.
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusCanceled || s.Status == SubscriptionStatusExpired
}

// PeriodElapsed reports whether the paid period ended before the given time.
func (s *Subscription) PeriodElapsed(now time.Time) bool {
	return s.CurrentPeriodEnd.Before(now)
}

// PastDueGraceDays is how long a past_due subscription keeps entitling beyond
// its period end while the renewal is retried.
const PastDueGraceDays = 7

// EntitlesAt reports whether this row feeds entitlements at the given time.
// Active and trialing rows entitle until their period end; past_due rows get
// the grace window on top.
func (s *Subscription) EntitlesAt(now time.Time) bool {
	if !s.IsEntitling() {
		return false
	}
	if !s.PeriodElapsed(now) {
		return true
	}
	if s.Status == SubscriptionStatusPastDue {
		return now.Before(s.CurrentPeriodEnd.AddDate(0, 0, PastDueGraceDays))
	}
	return false
}

// NextPeriodEnd returns the period end extended by one billing interval.
func (s *Subscription) NextPeriodEnd() time.Time {
	if s.BillingInterval == BillingIntervalYear {
		return s.CurrentPeriodEnd.AddDate(1, 0, 0)
	}
	return s.CurrentPeriodEnd.AddDate(0, 1, 0)
}
