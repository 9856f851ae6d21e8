package repository

import (
	"time"

	"github.com/fitvox/FitVox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	GetOrCreateSettings(userID uint) (*models.UserSettings, error)
	SaveSettings(us *models.UserSettings) error
}

// SubscriptionRepository defines the interface for subscription persistence.
// Rows are append-then-mutate only; nothing here deletes.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetActiveByUser(userID uint) (*models.Subscription, error)
	GetEntitlingByUser(userID uint) (*models.Subscription, error)
	ListByUser(userID uint) ([]models.Subscription, error)
	ListDue(now time.Time) ([]models.Subscription, error)
	Update(sub *models.Subscription) error
	FindByProviderPayment(provider, providerPaymentID string) (*models.Subscription, error)
}

// QuotaRepository defines the interface for the voice quota ledger. Consume
// and reset are conditional single-row updates so concurrent callers cannot
// produce lost updates or double resets.
type QuotaRepository interface {
	GetOrCreateUsage(userID uint) (*models.VoiceUsage, error)
	ResetDaily(userID uint, today string) (bool, error)
	TryConsume(usage *models.VoiceUsage, fromDaily, fromBanked int64) (bool, error)
	SetDailyLimit(userID uint, dailyLimitSeconds int64) error
	ApplyTurbo(userID uint, bonusSeconds int64, expiresAt time.Time) error
	AddBanked(userID uint, seconds int64) error
	GetUnlimitedPass(userID uint) (*models.UnlimitedPass, error)
	UpsertUnlimitedPass(userID uint, expiresAt time.Time) error
	CreateRecharge(recharge *models.Recharge) error
}

// PaymentRepository defines the interface for payment and webhook event
// persistence used by the reconciler.
type PaymentRepository interface {
	UpsertPayment(p *models.Payment) error
	GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error)
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	CreateEventApplicationIfNew(subscriptionID uint, targetStatus, providerPaymentID string) (bool, error)
}

// ActivationCodeRepository defines the interface for activation code redemption.
type ActivationCodeRepository interface {
	Create(code *models.ActivationCode) error
	GetByCode(code string) (*models.ActivationCode, error)
	MarkRedeemed(id uint, userID uint, at time.Time) (bool, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User           UserRepository
	Subscription   SubscriptionRepository
	Quota          QuotaRepository
	Payment        PaymentRepository
	ActivationCode ActivationCodeRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:           NewUserRepository(db),
		Subscription:   NewSubscriptionRepository(db),
		Quota:          NewQuotaRepository(db),
		Payment:        NewPaymentRepository(db),
		ActivationCode: NewActivationCodeRepository(db),
	}
}
