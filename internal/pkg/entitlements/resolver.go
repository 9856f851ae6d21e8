package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ExpireFunc retires an elapsed subscription. The canonical implementation
// is the billing state machine's expire edge, which also reconciles the
// user's cached plan.
type ExpireFunc func(ctx context.Context, sub *models.Subscription) error

// Resolver computes the entitlement snapshot for a user from the active
// subscription, the plan catalog and the voice ledger. It is the only read
// path the API uses; subscription status writes stay with billing, reached
// here only through the expire hook.
type Resolver struct {
	subs   repository.SubscriptionRepository
	quota  repository.QuotaRepository
	expire ExpireFunc
	now    func() time.Time
}

// NewResolver creates a resolver from the shared repositories.
func NewResolver(repos *repository.Repositories, expire ExpireFunc) *Resolver {
	return &Resolver{
		subs:   repos.Subscription,
		quota:  repos.Quota,
		expire: expire,
		now:    time.Now,
	}
}

// Resolve returns the current entitlement snapshot for a user. A user without
// an entitling subscription gets a fresh free-tier snapshot. A subscription
// whose period elapsed is marked expired as a side effect; repeated calls are
// harmless because the expired row no longer matches the active lookup.
func (r *Resolver) Resolve(ctx context.Context, userID uint) (*Snapshot, error) {
	now := r.now()

	sub, err := r.subs.GetEntitlingByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return FreeSnapshot(), nil
		}
		return nil, err
	}

	if !sub.EntitlesAt(now) {
		// Elapsed beyond any grace. Expire lazily so the next read is cheap.
		if err := r.expire(ctx, sub); err != nil {
			log.Errorf("entitlements: expiring subscription %d failed: %v", sub.ID, err)
		}
		return FreeSnapshot(), nil
	}

	plan, err := LookupPlan(sub.PlanName)
	if err != nil {
		// Configuration error: an active subscription references a plan the
		// catalog does not know. Surfaced, not mapped to free.
		return nil, err
	}

	// Lazy daily reset before reading balances.
	today := models.UsageDate(now)
	if _, err := r.quota.ResetDaily(userID, today); err != nil {
		return nil, err
	}
	usage, err := r.quota.GetOrCreateUsage(userID)
	if err != nil {
		return nil, err
	}

	voice := VoiceQuota{
		DailyLimitSeconds:     usage.EffectiveDailyLimit(now),
		DailyRemainingSeconds: usage.DailyRemaining(now),
		BankedSeconds:         usage.BankedBalanceSeconds,
	}
	pass, err := r.quota.GetUnlimitedPass(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if pass.IsActive(now) {
		expires := pass.ExpiresAt
		voice = VoiceQuota{Unlimited: true, UnlimitedUntil: &expires}
	}

	end := sub.CurrentPeriodEnd
	return &Snapshot{
		Plan:       plan.Name,
		Status:     sub.Status,
		Features:   FeaturesForPlan(plan),
		Voice:      voice,
		CanUpgrade: HasUpgrade(plan.Name),
		PeriodEnd:  &end,
	}, nil
}
