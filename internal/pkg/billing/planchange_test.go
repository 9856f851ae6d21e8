package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/internal/pkg/entitlements"
)

func newTestPlanChanger(s *memStore) (*PlanChanger, *Lifecycle) {
	repos := s.repos()
	lifecycle := NewLifecycle(repos, s.notify)
	reconciler := NewReconciler(repos, &ProviderClient{}, lifecycle)
	return NewPlanChanger(repos, reconciler, lifecycle), lifecycle
}

func TestChangePlanUpgradeKeepsOldPlanUntilPeriodEnd(t *testing.T) {
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	p, lifecycle := newTestPlanChanger(s)

	old, err := lifecycle.Activate(context.Background(), 1, mustPlan(t, entitlements.PlanMonthly), models.PaymentProviderPayGate, "pay-1", false)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	result, err := p.ChangePlan(context.Background(), 1, entitlements.PlanYearly)
	if err != nil {
		t.Fatalf("ChangePlan: %v", err)
	}
	if result.Direction != "upgrade" {
		t.Fatalf("direction = %s, want upgrade", result.Direction)
	}
	if result.OldPlanUntil == nil || !result.OldPlanUntil.Equal(old.CurrentPeriodEnd) {
		t.Fatalf("OldPlanUntil = %v, want %v", result.OldPlanUntil, old.CurrentPeriodEnd)
	}

	// Old row: still active, deferred cancel armed. No money thrown away.
	oldRow, _ := s.repos().Subscription.GetByID(old.ID)
	if oldRow.Status != models.SubscriptionStatusActive {
		t.Fatalf("old status = %s, want active", oldRow.Status)
	}
	if !oldRow.CancelAtPeriodEnd {
		t.Fatal("old row has no deferred cancellation")
	}

	// New row: active immediately, higher plan wins the reconciled cache.
	if result.NewSub.Status != models.SubscriptionStatusActive {
		t.Fatalf("new status = %s, want active", result.NewSub.Status)
	}
	if got := s.settings[1].Plan; got != entitlements.PlanYearly {
		t.Fatalf("cached plan = %s, want %s", got, entitlements.PlanYearly)
	}
	if got := s.usage[1].DailyLimitSeconds; got != 1200 {
		t.Fatalf("daily limit = %d, want 1200", got)
	}
}

func TestChangePlanDowngradeCancelsImmediately(t *testing.T) {
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	p, lifecycle := newTestPlanChanger(s)

	old, _ := lifecycle.Activate(context.Background(), 1, mustPlan(t, entitlements.PlanYearly), models.PaymentProviderPayGate, "pay-1", false)

	result, err := p.ChangePlan(context.Background(), 1, entitlements.PlanMonthly)
	if err != nil {
		t.Fatalf("ChangePlan: %v", err)
	}
	if result.Direction != "downgrade" {
		t.Fatalf("direction = %s, want downgrade", result.Direction)
	}
	if result.OldPlanUntil != nil {
		t.Fatal("downgrade must not keep the old plan around")
	}

	oldRow, _ := s.repos().Subscription.GetByID(old.ID)
	if oldRow.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("old status = %s, want canceled", oldRow.Status)
	}
	if got := s.settings[1].Plan; got != entitlements.PlanMonthly {
		t.Fatalf("cached plan = %s, want %s", got, entitlements.PlanMonthly)
	}
	if got := s.usage[1].DailyLimitSeconds; got != 900 {
		t.Fatalf("daily limit = %d, want 900", got)
	}
}

func TestChangePlanRejectsSamePlan(t *testing.T) {
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	p, lifecycle := newTestPlanChanger(s)

	lifecycle.Activate(context.Background(), 1, mustPlan(t, entitlements.PlanMonthly), models.PaymentProviderPayGate, "pay-1", false)

	if _, err := p.ChangePlan(context.Background(), 1, entitlements.PlanMonthly); !errors.Is(err, ErrSamePlan) {
		t.Fatalf("err = %v, want ErrSamePlan", err)
	}
}

func TestChangePlanRequiresActiveSubscription(t *testing.T) {
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	p, _ := newTestPlanChanger(s)

	if _, err := p.ChangePlan(context.Background(), 1, entitlements.PlanMonthly); !errors.Is(err, ErrNoActiveSubscription) {
		t.Fatalf("err = %v, want ErrNoActiveSubscription", err)
	}
}

func TestChangePlanRejectsUnknownAndFreeTargets(t *testing.T) {
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	p, lifecycle := newTestPlanChanger(s)
	lifecycle.Activate(context.Background(), 1, mustPlan(t, entitlements.PlanMonthly), models.PaymentProviderPayGate, "pay-1", false)

	if _, err := p.ChangePlan(context.Background(), 1, "platinum_lifetime"); !errors.Is(err, entitlements.ErrUnknownPlan) {
		t.Fatalf("unknown plan err = %v, want ErrUnknownPlan", err)
	}
	if _, err := p.ChangePlan(context.Background(), 1, entitlements.PlanFree); !errors.Is(err, entitlements.ErrUnknownPlan) {
		t.Fatalf("free target err = %v, want ErrUnknownPlan", err)
	}
}

func TestChangePlanUpgradeThenSweepExpiresOldRow(t *testing.T) {
	s := newMemStore()
	s.addUser(1, "lisa@example.com")
	p, lifecycle := newTestPlanChanger(s)

	old, _ := lifecycle.Activate(context.Background(), 1, mustPlan(t, entitlements.PlanMonthly), models.PaymentProviderPayGate, "pay-1", false)
	if _, err := p.ChangePlan(context.Background(), 1, entitlements.PlanYearly); err != nil {
		t.Fatalf("ChangePlan: %v", err)
	}

	// Sweep after the old period ran out: the deferred cancel fires, the
	// yearly row keeps entitling.
	repos := s.repos()
	reconciler := NewReconciler(repos, &ProviderClient{}, lifecycle)
	sw := NewSweeper(repos, reconciler, lifecycle)
	result, err := sw.Run(context.Background(), old.CurrentPeriodEnd.Add(time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Expired != 1 {
		t.Fatalf("result = %+v, want Expired=1", result)
	}

	oldRow, _ := s.repos().Subscription.GetByID(old.ID)
	if oldRow.Status != models.SubscriptionStatusExpired {
		t.Fatalf("old status = %s, want expired", oldRow.Status)
	}
	if got := s.settings[1].Plan; got != entitlements.PlanYearly {
		t.Fatalf("cached plan = %s, want %s", got, entitlements.PlanYearly)
	}
}
