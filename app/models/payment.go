package models

import "time"

const PaymentProviderPayGate = "paygate"

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusCanceled = "canceled"
)

// Payment mirrors one provider payment. AmountCents is in minor currency
// units. The (provider, provider_payment_id) pair is unique so duplicate
// webhook delivery can never create a second payment record.
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index" json:"user_id"`
	Provider          string    `gorm:"type:varchar(20);not null;index:ux_payments_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID string    `gorm:"type:varchar(191);not null;index:ux_payments_provider_payment,unique,priority:2" json:"provider_payment_id"`
	PlanName          string    `gorm:"type:varchar(50);not null;default:''" json:"plan_name"`
	AmountCents       int64     `gorm:"not null;default:0" json:"amount_cents"`
	Status            string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	RawPayloadJSON    string    `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
