package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"github.com/fitvox/FitVox/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
)

// NotifyFunc is the fire-and-forget notification sink. Implementations must
// never block the caller on delivery problems; errors are theirs to log.
type NotifyFunc func(email, subject, body string)

// Lifecycle owns every subscription status transition. Nothing else in the
// codebase writes Subscription.Status.
type Lifecycle struct {
	subs   repository.SubscriptionRepository
	users  repository.UserRepository
	quota  repository.QuotaRepository
	notify NotifyFunc
	now    func() time.Time
}

// NewLifecycle creates the subscription state machine.
func NewLifecycle(repos *repository.Repositories, notify NotifyFunc) *Lifecycle {
	return &Lifecycle{
		subs:   repos.Subscription,
		users:  repos.User,
		quota:  repos.Quota,
		notify: notify,
		now:    time.Now,
	}
}

// validTransitions is the full transition table. Terminal states have no
// outgoing edges; a transition out of them is always rejected.
var validTransitions = map[string][]string{
	models.SubscriptionStatusTrialing: {models.SubscriptionStatusActive, models.SubscriptionStatusCanceled, models.SubscriptionStatusExpired},
	models.SubscriptionStatusActive:   {models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled, models.SubscriptionStatusExpired},
	models.SubscriptionStatusPastDue:  {models.SubscriptionStatusActive, models.SubscriptionStatusCanceled, models.SubscriptionStatusExpired},
	models.SubscriptionStatusCanceled: {},
	models.SubscriptionStatusExpired:  {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves a subscription to a new status, persists it and
// reconciles the user's cached effective plan. Invalid edges are rejected
// with an error.
func (l *Lifecycle) Transition(ctx context.Context, sub *models.Subscription, to string) error {
	_ = ctx
	if sub.Status == to {
		return nil
	}
	if !CanTransition(sub.Status, to) {
		return fmt.Errorf("billing: invalid transition %s -> %s for subscription %d", sub.Status, to, sub.ID)
	}

	sub.Status = to
	if to == models.SubscriptionStatusCanceled {
		now := l.now()
		sub.CanceledAt = &now
	}
	if err := l.subs.Update(sub); err != nil {
		return err
	}

	if _, err := l.ReconcileUserPlan(ctx, sub.UserID); err != nil {
		return err
	}
	return nil
}

// Expire moves an elapsed subscription to expired through the transition
// table. This is the lazy-expiry hook handed to entitlement reads; terminal
// rows are rejected like any other invalid edge.
func (l *Lifecycle) Expire(ctx context.Context, sub *models.Subscription) error {
	return l.Transition(ctx, sub, models.SubscriptionStatusExpired)
}

// Activate creates a new subscription row for a user and reconciles the
// effective plan. The trial flag creates a trialing row instead of an active
// one; the sweep resolves it to active or expired at trial end.
func (l *Lifecycle) Activate(ctx context.Context, userID uint, plan entitlements.Plan, provider, providerPaymentID string, trial bool) (*models.Subscription, error) {
	now := l.now()

	status := models.SubscriptionStatusActive
	end := now.AddDate(0, 1, 0)
	interval := models.BillingIntervalMonth
	if plan.BillingInterval == models.BillingIntervalYear {
		end = now.AddDate(1, 0, 0)
		interval = models.BillingIntervalYear
	}
	if trial {
		status = models.SubscriptionStatusTrialing
		end = now.AddDate(0, 0, trialDays)
	}

	sub := &models.Subscription{
		UserID:             userID,
		PlanName:           plan.Name,
		Status:             status,
		BillingInterval:    interval,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   end,
		PaymentProvider:    provider,
		ProviderPaymentID:  providerPaymentID,
	}
	if err := l.subs.Create(sub); err != nil {
		return nil, err
	}

	if _, err := l.ReconcileUserPlan(ctx, userID); err != nil {
		return sub, err
	}
	return sub, nil
}

const trialDays = 7

// ReconcileUserPlan recomputes the best entitling plan across all of a
// user's subscription rows, caches it on UserSettings and aligns the voice
// ledger's daily allowance. Idempotent by construction.
func (l *Lifecycle) ReconcileUserPlan(ctx context.Context, userID uint) (string, error) {
	_ = ctx
	subs, err := l.subs.ListByUser(userID)
	if err != nil {
		return "", err
	}

	best := entitlements.PlanFree
	now := l.now()
	for i := range subs {
		sub := &subs[i]
		if !sub.EntitlesAt(now) {
			continue
		}
		candidate := entitlements.NormalizePlan(sub.PlanName)
		if entitlements.PlanRank(candidate) > entitlements.PlanRank(best) {
			best = candidate
		}
	}

	plan, err := entitlements.LookupPlan(best)
	if err != nil {
		return "", err
	}
	if err := l.quota.SetDailyLimit(userID, plan.DailyVoiceSeconds); err != nil {
		return "", err
	}

	us, err := l.users.GetOrCreateSettings(userID)
	if err != nil {
		return "", err
	}
	if entitlements.NormalizePlan(us.Plan) == best {
		return best, nil
	}
	us.Plan = best
	if err := l.users.SaveSettings(us); err != nil {
		return "", err
	}
	return best, nil
}

// notifyUser delivers a notification to a user's email, best-effort.
func (l *Lifecycle) notifyUser(userID uint, subject, body string) {
	if l.notify == nil {
		return
	}
	user, err := l.users.GetByID(userID)
	if err != nil {
		log.Errorf("billing: loading user %d for notification failed: %v", userID, err)
		return
	}
	l.notify(user.Email, subject, body)
}
