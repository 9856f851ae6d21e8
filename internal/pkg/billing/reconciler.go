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

// Reconciler is the single boundary to the payment provider. Trust order is
// fixed: local record first (fast, possibly stale), provider API second
// (ground truth, possibly down). Every caller that needs provider state goes
// through here; nobody else re-implements the fallback chain.
type Reconciler struct {
	payments  repository.PaymentRepository
	subs      repository.SubscriptionRepository
	client    *ProviderClient
	lifecycle *Lifecycle
	now       func() time.Time
}

// NewReconciler creates the payment reconciler.
func NewReconciler(repos *repository.Repositories, client *ProviderClient, lifecycle *Lifecycle) *Reconciler {
	return &Reconciler{
		payments:  repos.Payment,
		subs:      repos.Subscription,
		client:    client,
		lifecycle: lifecycle,
		now:       time.Now,
	}
}

// CheckStatus resolves the status of a provider payment. A decided local
// record answers immediately; otherwise the provider is asked under a bounded
// timeout. Any provider problem degrades to pending — the sweep will simply
// look again next run.
func (r *Reconciler) CheckStatus(ctx context.Context, provider, paymentID string) string {
	if paymentID == "" {
		return models.PaymentStatusPending
	}

	local, err := r.payments.GetByProviderPaymentID(provider, paymentID)
	if err == nil {
		switch local.Status {
		case models.PaymentStatusPaid, models.PaymentStatusFailed, models.PaymentStatusCanceled:
			return local.Status
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("billing: local payment lookup %s failed: %v", paymentID, err)
		return models.PaymentStatusPending
	}

	if r.client.WebhookOnly() {
		return models.PaymentStatusPending
	}

	callCtx, cancel := context.WithTimeout(ctx, providerRequestTimeout)
	defer cancel()
	remote, err := r.client.GetPayment(callCtx, paymentID)
	if err != nil {
		log.Warnf("billing: provider status check for %s degraded to pending: %v", paymentID, err)
		return models.PaymentStatusPending
	}

	switch eventOutcome("", remote.Status) {
	case OutcomePaid:
		return models.PaymentStatusPaid
	case OutcomeFailed:
		return models.PaymentStatusFailed
	case OutcomeCanceled:
		return models.PaymentStatusCanceled
	default:
		return models.PaymentStatusPending
	}
}

// Cancel cancels a subscription, fail-open toward the user's intent: the
// provider call is attempted under a timeout, but the local row is marked
// canceled no matter what the provider says. A later duplicate "canceled"
// webhook finds a terminal row and is a no-op.
func (r *Reconciler) Cancel(ctx context.Context, sub *models.Subscription) error {
	if sub.IsTerminal() {
		return nil
	}

	if !r.client.WebhookOnly() && sub.ProviderPaymentID != "" {
		callCtx, cancel := context.WithTimeout(ctx, providerRequestTimeout)
		defer cancel()
		if err := r.client.CancelSubscription(callCtx, sub.ProviderPaymentID); err != nil {
			log.Warnf("billing: provider cancel for subscription %d failed, committing local cancel anyway: %v", sub.ID, err)
		}
	}

	if err := r.lifecycle.Transition(ctx, sub, models.SubscriptionStatusCanceled); err != nil {
		return err
	}
	r.lifecycle.notifyUser(sub.UserID, "Subscription canceled",
		"Your subscription has been canceled. You keep access until the end of the paid period.")
	return nil
}

// ApplyProviderEvent is the single code path for both webhook ingestion and
// polling results. It maps the event to a local outcome and applies it under
// an idempotency key of (subscriptionID, targetStatus, providerPaymentID):
// duplicate delivery never double-extends a period or duplicates a payment,
// and terminal subscription states are sticky against out-of-order replays.
// The returned bool reports whether any state changed.
func (r *Reconciler) ApplyProviderEvent(ctx context.Context, ev ProviderEvent) (bool, error) {
	outcome := eventOutcome(ev.EventType, ev.PaymentStatus)
	if outcome == OutcomeIgnored {
		return false, nil
	}

	sub, err := r.subs.FindByProviderPayment(ev.Provider, ev.PaymentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		if outcome == OutcomePaid && ev.UserID != 0 && ev.PlanName != "" {
			return r.provision(ctx, ev)
		}
		// Failure or cancellation for a payment we never provisioned.
		return false, nil
	}

	applied, err := r.payments.CreateEventApplicationIfNew(sub.ID, string(outcome), ev.PaymentID)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	r.recordPayment(sub.UserID, ev, outcome)

	if sub.IsTerminal() {
		// Sticky terminal state: a late paid event must not resurrect a
		// canceled or expired subscription.
		log.Infof("billing: ignoring %s event for terminal subscription %d", outcome, sub.ID)
		return false, nil
	}

	switch outcome {
	case OutcomePaid:
		sub.CurrentPeriodEnd = sub.NextPeriodEnd()
		if sub.Status == models.SubscriptionStatusPastDue || sub.Status == models.SubscriptionStatusTrialing {
			if err := r.lifecycle.Transition(ctx, sub, models.SubscriptionStatusActive); err != nil {
				return false, err
			}
		} else if err := r.subs.Update(sub); err != nil {
			return false, err
		}
		return true, nil

	case OutcomeFailed:
		if sub.Status == models.SubscriptionStatusPastDue {
			return false, nil
		}
		return true, r.lifecycle.Transition(ctx, sub, models.SubscriptionStatusPastDue)

	case OutcomeCanceled:
		return true, r.lifecycle.Transition(ctx, sub, models.SubscriptionStatusCanceled)
	}
	return false, nil
}

// provision creates the payment record and the subscription for a first
// successful payment. Re-delivery is idempotent: the second call finds the
// subscription by its provider payment id and goes through the keyed path.
// A user who already has an active row never gets a second one: a paid event
// under a fresh payment id is treated as a renewal of the existing row.
func (r *Reconciler) provision(ctx context.Context, ev ProviderEvent) (bool, error) {
	plan, err := entitlements.LookupPlan(ev.PlanName)
	if err != nil {
		return false, err
	}

	r.recordPayment(ev.UserID, ev, OutcomePaid)

	existing, err := r.subs.GetActiveByUser(ev.UserID)
	if err == nil {
		return r.adoptRenewal(existing, plan, ev)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	sub, err := r.lifecycle.Activate(ctx, ev.UserID, plan, ev.Provider, ev.PaymentID, false)
	if err != nil {
		return false, err
	}
	if _, err := r.payments.CreateEventApplicationIfNew(sub.ID, string(OutcomePaid), ev.PaymentID); err != nil {
		return false, err
	}
	r.lifecycle.notifyUser(ev.UserID, "Welcome to premium",
		"Your payment was received and your plan is now active.")
	return true, nil
}

// adoptRenewal applies a paid event with an unknown payment id to the active
// subscription the user already has: the provider rotated the payment id and
// the row keeps its identity. A conflicting plan is refused and left for
// support; the payment itself stays recorded for audit.
func (r *Reconciler) adoptRenewal(sub *models.Subscription, plan entitlements.Plan, ev ProviderEvent) (bool, error) {
	if entitlements.NormalizePlan(sub.PlanName) != plan.Name {
		log.Warnf("billing: paid event %s for user %d targets plan %s but subscription %d is on %s, refusing a second active row",
			ev.PaymentID, ev.UserID, plan.Name, sub.ID, sub.PlanName)
		return false, nil
	}

	applied, err := r.payments.CreateEventApplicationIfNew(sub.ID, string(OutcomePaid), ev.PaymentID)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	sub.PaymentProvider = ev.Provider
	sub.ProviderPaymentID = ev.PaymentID
	sub.CurrentPeriodEnd = sub.NextPeriodEnd()
	if err := r.subs.Update(sub); err != nil {
		return false, err
	}
	return true, nil
}

// recordPayment upserts the local payment mirror, best-effort.
func (r *Reconciler) recordPayment(userID uint, ev ProviderEvent, outcome Outcome) {
	if ev.PaymentID == "" {
		return
	}
	status := models.PaymentStatusPending
	switch outcome {
	case OutcomePaid:
		status = models.PaymentStatusPaid
	case OutcomeFailed:
		status = models.PaymentStatusFailed
	case OutcomeCanceled:
		status = models.PaymentStatusCanceled
	}
	p := &models.Payment{
		UserID:            userID,
		Provider:          ev.Provider,
		ProviderPaymentID: ev.PaymentID,
		PlanName:          entitlements.NormalizePlan(ev.PlanName),
		AmountCents:       ev.AmountCents,
		Status:            status,
		RawPayloadJSON:    ev.RawJSON,
	}
	if err := r.payments.UpsertPayment(p); err != nil {
		log.Errorf("billing: recording payment %s failed: %v", ev.PaymentID, err)
	}
}
