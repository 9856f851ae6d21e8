package billing

import (
	"context"
	"errors"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"github.com/fitvox/FitVox/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var (
	// ErrSamePlan is returned when a plan change targets the plan the user
	// already has.
	ErrSamePlan = errors.New("billing: subscription already on this plan")
	// ErrNoActiveSubscription is returned when a plan change is requested
	// for a user without an entitling subscription.
	ErrNoActiveSubscription = errors.New("billing: no active subscription to change")
)

// PlanChangeResult describes what a plan change did.
type PlanChangeResult struct {
	Direction string // "upgrade" or "downgrade"
	OldPlan   string
	NewPlan   string
	// OldPlanUntil is set for upgrades: the instant the old paid period
	// runs out and its deferred cancellation takes effect.
	OldPlanUntil *time.Time
	NewSub       *models.Subscription
}

// PlanChanger moves a user between paid plans.
//
// Upgrades keep what was already paid for: the old subscription gets a
// deferred cancellation at period end and the new, higher plan starts
// immediately, so the user is never entitled to less than they paid for.
// Downgrades cancel the old subscription right away; the lower plan starts
// on a fresh period.
type PlanChanger struct {
	subs       repository.SubscriptionRepository
	reconciler *Reconciler
	lifecycle  *Lifecycle
	now        func() time.Time
}

// NewPlanChanger creates the plan change coordinator.
func NewPlanChanger(repos *repository.Repositories, reconciler *Reconciler, lifecycle *Lifecycle) *PlanChanger {
	return &PlanChanger{
		subs:       repos.Subscription,
		reconciler: reconciler,
		lifecycle:  lifecycle,
		now:        time.Now,
	}
}

// ChangePlan switches the user's current subscription to newPlanName.
func (p *PlanChanger) ChangePlan(ctx context.Context, userID uint, newPlanName string) (*PlanChangeResult, error) {
	newPlan, err := entitlements.LookupPlan(newPlanName)
	if err != nil {
		return nil, err
	}
	if newPlan.Rank == 0 {
		// Moving to free is a cancellation, not a plan change.
		return nil, entitlements.ErrUnknownPlan
	}

	current, err := p.subs.GetActiveByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}

	oldPlan := entitlements.NormalizePlan(current.PlanName)
	if oldPlan == newPlan.Name {
		return nil, ErrSamePlan
	}
	if !entitlements.SameFamily(oldPlan, newPlan.Name) {
		// Rank comparison across families is approximate; proceed, but
		// leave a trace for support.
		log.Warnf("billing: cross-family plan change for user %d: %s -> %s", userID, oldPlan, newPlan.Name)
	}

	result := &PlanChangeResult{
		OldPlan: oldPlan,
		NewPlan: newPlan.Name,
	}

	if entitlements.PlanRank(newPlan.Name) > entitlements.PlanRank(oldPlan) {
		result.Direction = "upgrade"
		current.CancelAtPeriodEnd = true
		if err := p.subs.Update(current); err != nil {
			return nil, err
		}
		until := current.CurrentPeriodEnd
		result.OldPlanUntil = &until
	} else {
		result.Direction = "downgrade"
		if err := p.reconciler.Cancel(ctx, current); err != nil {
			return nil, err
		}
	}

	// The new subscription inherits the provider identity of the old one;
	// the provider keeps charging under the same mandate.
	sub, err := p.lifecycle.Activate(ctx, userID, newPlan, current.PaymentProvider, current.ProviderPaymentID, false)
	if err != nil {
		return nil, err
	}
	result.NewSub = sub

	p.lifecycle.notifyUser(userID, "Plan changed",
		"Your plan was changed from "+oldPlan+" to "+newPlan.Name+".")
	return result, nil
}
