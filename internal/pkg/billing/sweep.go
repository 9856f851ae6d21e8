package billing

import (
	"context"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"github.com/gofiber/fiber/v2/log"
)

// SweepResult summarizes one renewal sweep run. A second run over unchanged
// data reports all zeros except Skipped.
type SweepResult struct {
	Due      int
	Renewed  int
	Expired  int
	PastDue  int
	Canceled int
	Skipped  int
	Errors   int
}

// Sweeper runs the periodic renewal sweep over due subscriptions.
type Sweeper struct {
	subs       repository.SubscriptionRepository
	reconciler *Reconciler
	lifecycle  *Lifecycle
}

// NewSweeper creates the renewal sweeper.
func NewSweeper(repos *repository.Repositories, reconciler *Reconciler, lifecycle *Lifecycle) *Sweeper {
	return &Sweeper{
		subs:       repos.Subscription,
		reconciler: reconciler,
		lifecycle:  lifecycle,
	}
}

// Run executes one renewal sweep at the given instant. Each subscription is
// processed inside its own failure boundary: one row's error is counted and
// logged, never aborting the batch. The sweep is idempotent — extending a
// period moves the row out of the due window, so re-running it the same day
// is a no-op.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	due, err := s.subs.ListDue(now)
	if err != nil {
		return result, err
	}
	result.Due = len(due)

	for i := range due {
		sub := &due[i]
		if err := s.sweepOne(ctx, sub, now, &result); err != nil {
			result.Errors++
			log.Errorf("billing: sweep of subscription %d failed: %v", sub.ID, err)
		}
	}
	return result, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, sub *models.Subscription, now time.Time, result *SweepResult) error {
	// Deferred cancellation wins over everything: the user already decided.
	if sub.CancelAtPeriodEnd || sub.CanceledAt != nil {
		if err := s.lifecycle.Transition(ctx, sub, models.SubscriptionStatusExpired); err != nil {
			return err
		}
		s.lifecycle.notifyUser(sub.UserID, "Subscription ended",
			"Your subscription has ended as requested. You are now on the free plan.")
		result.Expired++
		return nil
	}

	status := s.reconciler.CheckStatus(ctx, sub.PaymentProvider, sub.ProviderPaymentID)
	switch status {
	case models.PaymentStatusPaid:
		sub.CurrentPeriodEnd = sub.NextPeriodEnd()
		if sub.Status != models.SubscriptionStatusActive {
			if err := s.lifecycle.Transition(ctx, sub, models.SubscriptionStatusActive); err != nil {
				return err
			}
		} else if err := s.subs.Update(sub); err != nil {
			return err
		}
		result.Renewed++
		return nil

	case models.PaymentStatusFailed:
		if sub.Status == models.SubscriptionStatusTrialing {
			if err := s.lifecycle.Transition(ctx, sub, models.SubscriptionStatusExpired); err != nil {
				return err
			}
			result.Expired++
			return nil
		}
		if sub.Status == models.SubscriptionStatusPastDue {
			// Give late payments a bounded grace window, then expire.
			if !sub.EntitlesAt(now) {
				if err := s.lifecycle.Transition(ctx, sub, models.SubscriptionStatusExpired); err != nil {
					return err
				}
				result.Expired++
				return nil
			}
			result.Skipped++
			return nil
		}
		if err := s.lifecycle.Transition(ctx, sub, models.SubscriptionStatusPastDue); err != nil {
			return err
		}
		s.lifecycle.notifyUser(sub.UserID, "Payment problem",
			"We could not confirm your last payment. Please update your payment method.")
		result.PastDue++
		return nil

	case models.PaymentStatusCanceled:
		if err := s.lifecycle.Transition(ctx, sub, models.SubscriptionStatusCanceled); err != nil {
			return err
		}
		result.Canceled++
		return nil

	default:
		// pending/unknown: leave untouched, the next sweep looks again.
		result.Skipped++
		return nil
	}
}
