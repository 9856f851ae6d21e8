package repository

import (
	"time"

	"github.com/fitvox/FitVox/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create creates a new subscription row
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// GetByID retrieves a subscription by its ID
func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveByUser returns the newest status=active subscription for a user.
// During the transient upgrade window two rows may entitle; the newest one
// carries the new plan and wins.
func (r *subscriptionRepository) GetActiveByUser(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetEntitlingByUser returns the newest subscription row that can still feed
// entitlements (active, trialing or past_due). Whether its period still
// entitles is the caller's call.
func (r *subscriptionRepository) GetEntitlingByUser(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("user_id = ? AND status IN ?", userID,
			[]string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing, models.SubscriptionStatusPastDue}).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUser returns all subscription rows for a user, newest first
func (r *subscriptionRepository) ListByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// ListDue returns subscriptions whose paid period ended at or before now and
// which still need a renewal decision. This is the sweep's check window:
// extending a period moves the row out of it, which is what makes re-running
// the sweep a no-op.
func (r *subscriptionRepository) ListDue(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status IN ? AND current_period_end <= ?",
			[]string{models.SubscriptionStatusActive, models.SubscriptionStatusPastDue, models.SubscriptionStatusTrialing}, now).
		Order("current_period_end ASC").
		Find(&subs).Error
	return subs, err
}

// Update persists changes to an existing subscription row
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// FindByProviderPayment returns the newest subscription linked to a provider payment
func (r *subscriptionRepository) FindByProviderPayment(provider, providerPaymentID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("payment_provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
