package repository

import (
	"time"

	"github.com/fitvox/FitVox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// UpsertPayment creates or updates a payment keyed by (provider, provider_payment_id)
func (r *paymentRepository) UpsertPayment(p *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_payment_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"plan_name",
			"amount_cents",
			"status",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND provider_payment_id = ?", p.Provider, p.ProviderPaymentID).
		First(p).Error
}

// GetByProviderPaymentID returns the local payment record for a provider payment
func (r *paymentRepository) GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateWebhookEventIfNotExists inserts a webhook event unless its
// (provider, provider_event_id) pair was seen before. Returns whether this
// call created the row along with the stored row.
func (r *paymentRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkWebhookProcessed marks an event processed and stores an optional error message
func (r *paymentRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// CreateEventApplicationIfNew claims the idempotency key for one provider
// event outcome. False means the same outcome was already applied to this
// subscription and the caller must skip the mutation.
func (r *paymentRepository) CreateEventApplicationIfNew(subscriptionID uint, targetStatus, providerPaymentID string) (bool, error) {
	app := models.EventApplication{
		SubscriptionID:    subscriptionID,
		TargetStatus:      targetStatus,
		ProviderPaymentID: providerPaymentID,
	}
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subscription_id"},
			{Name: "target_status"},
			{Name: "provider_payment_id"},
		},
		DoNothing: true,
	}).Create(&app)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
