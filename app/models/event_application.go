package models

import "time"

// EventApplication records that one provider event outcome was applied to a
// subscription. The unique key (subscription_id, target_status,
// provider_payment_id) makes applyProviderEvent idempotent: an insert that
// conflicts means the mutation already happened and must be skipped.
type EventApplication struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID    uint      `gorm:"not null;index:ux_event_applications_key,unique,priority:1" json:"subscription_id"`
	TargetStatus      string    `gorm:"type:varchar(32);not null;index:ux_event_applications_key,unique,priority:2" json:"target_status"`
	ProviderPaymentID string    `gorm:"type:varchar(191);not null;index:ux_event_applications_key,unique,priority:3" json:"provider_payment_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}
