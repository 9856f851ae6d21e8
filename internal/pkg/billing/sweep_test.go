package billing

import (
	"context"
	"testing"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/internal/pkg/entitlements"
)

func seedSub(t *testing.T, s *memStore, userID uint, plan string, status string, end time.Time, deferredCancel bool) *models.Subscription {
	t.Helper()
	p := mustPlan(t, plan)
	sub := &models.Subscription{
		UserID:             userID,
		PlanName:           p.Name,
		Status:             status,
		BillingInterval:    p.BillingInterval,
		CurrentPeriodStart: end.AddDate(0, -1, 0),
		CurrentPeriodEnd:   end,
		CancelAtPeriodEnd:  deferredCancel,
		PaymentProvider:    models.PaymentProviderPayGate,
		ProviderPaymentID:  "pay-" + plan,
	}
	if err := s.repos().Subscription.Create(sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

// newTestSweeper wires the whole sweep stack to the store's clock, so the
// instant passed to Run and the instant the lifecycle reconciles with are
// always the same one.
func newTestSweeper(s *memStore) *Sweeper {
	repos := s.repos()
	lifecycle := NewLifecycle(repos, s.notify)
	lifecycle.now = s.timeNow
	reconciler := NewReconciler(repos, &ProviderClient{}, lifecycle)
	reconciler.now = s.timeNow
	return NewSweeper(repos, reconciler, lifecycle)
}

func TestSweepRenewsPaidSubscription(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	sub := seedSub(t, s, 1, entitlements.PlanMonthly, models.SubscriptionStatusActive, now.Add(-time.Hour), false)

	// Local payment record says the renewal charge went through.
	s.payments[paymentKey(models.PaymentProviderPayGate, sub.ProviderPaymentID)] = &models.Payment{
		Provider:          models.PaymentProviderPayGate,
		ProviderPaymentID: sub.ProviderPaymentID,
		Status:            models.PaymentStatusPaid,
	}

	s.setClock(now)
	sw := newTestSweeper(s)
	result, err := sw.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Due != 1 || result.Renewed != 1 {
		t.Fatalf("result = %+v, want Due=1 Renewed=1", result)
	}

	got, _ := s.repos().Subscription.GetByID(sub.ID)
	if got.Status != models.SubscriptionStatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if !got.CurrentPeriodEnd.After(now) {
		t.Fatalf("period end %v not extended past %v", got.CurrentPeriodEnd, now)
	}

	// Second run the same day: the row left the due window.
	result, err = sw.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.Due != 0 {
		t.Fatalf("second run found %d due rows, want 0", result.Due)
	}
}

func TestSweepExpiresDeferredCancellation(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	sub := seedSub(t, s, 1, entitlements.PlanMonthly, models.SubscriptionStatusActive, now.Add(-time.Hour), true)

	s.setClock(now)
	sw := newTestSweeper(s)
	result, err := sw.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Expired != 1 {
		t.Fatalf("result = %+v, want Expired=1", result)
	}

	got, _ := s.repos().Subscription.GetByID(sub.ID)
	if got.Status != models.SubscriptionStatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if got := s.settings[1].Plan; got != entitlements.PlanFree {
		t.Fatalf("cached plan = %s, want free", got)
	}
	if len(s.notifications) == 0 {
		t.Fatal("expected an end-of-subscription notification")
	}
}

func TestSweepMovesFailedRenewalToPastDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	sub := seedSub(t, s, 1, entitlements.PlanMonthly, models.SubscriptionStatusActive, now.Add(-time.Hour), false)

	s.payments[paymentKey(models.PaymentProviderPayGate, sub.ProviderPaymentID)] = &models.Payment{
		Provider:          models.PaymentProviderPayGate,
		ProviderPaymentID: sub.ProviderPaymentID,
		Status:            models.PaymentStatusFailed,
	}

	s.setClock(now)
	sw := newTestSweeper(s)
	result, err := sw.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.PastDue != 1 {
		t.Fatalf("result = %+v, want PastDue=1", result)
	}

	got, _ := s.repos().Subscription.GetByID(sub.ID)
	if got.Status != models.SubscriptionStatusPastDue {
		t.Fatalf("status = %s, want past_due", got.Status)
	}
	// Still entitling during the grace window.
	if got := s.settings[1].Plan; got != entitlements.PlanMonthly {
		t.Fatalf("cached plan = %s, want %s", got, entitlements.PlanMonthly)
	}

	// Within grace: left alone. Past grace: expired.
	s.setClock(now.AddDate(0, 0, 2))
	result, _ = sw.Run(context.Background(), now.AddDate(0, 0, 2))
	if result.Skipped != 1 {
		t.Fatalf("in-grace result = %+v, want Skipped=1", result)
	}
	s.setClock(now.AddDate(0, 0, models.PastDueGraceDays+1))
	result, _ = sw.Run(context.Background(), now.AddDate(0, 0, models.PastDueGraceDays+1))
	if result.Expired != 1 {
		t.Fatalf("post-grace result = %+v, want Expired=1", result)
	}
	got, _ = s.repos().Subscription.GetByID(sub.ID)
	if got.Status != models.SubscriptionStatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	if got := s.settings[1].Plan; got != entitlements.PlanFree {
		t.Fatalf("cached plan = %s, want free", got)
	}
}

func TestSweepLeavesPendingUntouched(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	sub := seedSub(t, s, 1, entitlements.PlanMonthly, models.SubscriptionStatusActive, now.Add(-time.Hour), false)

	// No local record, webhook-only client: status is unknowable right now.
	s.setClock(now)
	sw := newTestSweeper(s)
	result, err := sw.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Skipped != 1 {
		t.Fatalf("result = %+v, want Skipped=1", result)
	}
	got, _ := s.repos().Subscription.GetByID(sub.ID)
	if got.Status != models.SubscriptionStatusActive {
		t.Fatalf("status = %s, want active (untouched)", got.Status)
	}
	if !got.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd) {
		t.Fatal("period end moved for a pending renewal")
	}
}

func TestSweepExpiresTrialWithoutPayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	sub := seedSub(t, s, 1, entitlements.PlanMonthly, models.SubscriptionStatusTrialing, now.Add(-time.Hour), false)

	s.payments[paymentKey(models.PaymentProviderPayGate, sub.ProviderPaymentID)] = &models.Payment{
		Provider:          models.PaymentProviderPayGate,
		ProviderPaymentID: sub.ProviderPaymentID,
		Status:            models.PaymentStatusFailed,
	}

	s.setClock(now)
	sw := newTestSweeper(s)
	result, err := sw.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Expired != 1 {
		t.Fatalf("result = %+v, want Expired=1", result)
	}
	got, _ := s.repos().Subscription.GetByID(sub.ID)
	if got.Status != models.SubscriptionStatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
}
