package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"gorm.io/gorm"
)

// fakeQuotaRepo keeps the ledger rows in memory with the same conditional
// update semantics the real repository gets from SQL.
type fakeQuotaRepo struct {
	mu        sync.Mutex
	usage     map[uint]*models.VoiceUsage
	passes    map[uint]*models.UnlimitedPass
	recharges []models.Recharge

	// consumeInterference, when set, mutates state between the ledger's read
	// and its conditional write to simulate a concurrent consumer.
	consumeInterference func()
}

func newFakeQuotaRepo() *fakeQuotaRepo {
	return &fakeQuotaRepo{
		usage:  make(map[uint]*models.VoiceUsage),
		passes: make(map[uint]*models.UnlimitedPass),
	}
}

func (r *fakeQuotaRepo) GetOrCreateUsage(userID uint) (*models.VoiceUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.usage[userID]; ok {
		cp := *u
		return &cp, nil
	}
	u := &models.VoiceUsage{UserID: userID}
	r.usage[userID] = u
	cp := *u
	return &cp, nil
}

func (r *fakeQuotaRepo) ResetDaily(userID uint, today string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usage[userID]
	if !ok || u.LastUsageDate == today {
		return false, nil
	}
	u.LastUsageDate = today
	u.UsedTodaySeconds = 0
	return true, nil
}

func (r *fakeQuotaRepo) TryConsume(usage *models.VoiceUsage, fromDaily, fromBanked int64) (bool, error) {
	if r.consumeInterference != nil {
		r.consumeInterference()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usage[usage.UserID]
	if !ok {
		return false, nil
	}
	if u.UsedTodaySeconds != usage.UsedTodaySeconds ||
		u.BankedBalanceSeconds != usage.BankedBalanceSeconds ||
		u.LastUsageDate != usage.LastUsageDate {
		return false, nil
	}
	u.UsedTodaySeconds += fromDaily
	u.BankedBalanceSeconds -= fromBanked
	return true, nil
}

func (r *fakeQuotaRepo) SetDailyLimit(userID uint, dailyLimitSeconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.usage[userID]; !ok {
		r.usage[userID] = &models.VoiceUsage{UserID: userID}
	}
	r.usage[userID].DailyLimitSeconds = dailyLimitSeconds
	return nil
}

func (r *fakeQuotaRepo) ApplyTurbo(userID uint, bonusSeconds int64, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.usage[userID]; !ok {
		r.usage[userID] = &models.VoiceUsage{UserID: userID}
	}
	r.usage[userID].TurboBonusSeconds = bonusSeconds
	r.usage[userID].TurboExpiresAt = &expiresAt
	return nil
}

func (r *fakeQuotaRepo) AddBanked(userID uint, seconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.usage[userID]; !ok {
		r.usage[userID] = &models.VoiceUsage{UserID: userID}
	}
	r.usage[userID].BankedBalanceSeconds += seconds
	return nil
}

func (r *fakeQuotaRepo) GetUnlimitedPass(userID uint) (*models.UnlimitedPass, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.passes[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeQuotaRepo) UpsertUnlimitedPass(userID uint, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes[userID] = &models.UnlimitedPass{UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (r *fakeQuotaRepo) CreateRecharge(recharge *models.Recharge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recharges = append(r.recharges, *recharge)
	return nil
}

var _ repository.QuotaRepository = (*fakeQuotaRepo)(nil)

func newTestLedger(repo *fakeQuotaRepo, now time.Time) *Ledger {
	l := &Ledger{repo: repo, now: func() time.Time { return now }}
	return l
}

func seedUsage(repo *fakeQuotaRepo, userID uint, limit, used, banked int64, date string) {
	repo.usage[userID] = &models.VoiceUsage{
		UserID:               userID,
		DailyLimitSeconds:    limit,
		UsedTodaySeconds:     used,
		LastUsageDate:        date,
		BankedBalanceSeconds: banked,
	}
}

func TestConsumeDailyFirstThenBanked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeQuotaRepo()
	seedUsage(repo, 1, 900, 840, 6000, models.UsageDate(now))
	l := newTestLedger(repo, now)

	// 120s requested, 60s daily left: 60 from daily, 60 from bank.
	if err := l.Consume(context.Background(), 1, 120); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	u := repo.usage[1]
	if u.UsedTodaySeconds != 900 {
		t.Fatalf("used today = %d, want 900", u.UsedTodaySeconds)
	}
	if u.BankedBalanceSeconds != 5940 {
		t.Fatalf("banked = %d, want 5940", u.BankedBalanceSeconds)
	}
}

func TestConsumeExhaustedDeductsNothing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeQuotaRepo()
	seedUsage(repo, 1, 900, 880, 30, models.UsageDate(now))
	l := newTestLedger(repo, now)

	// 20s daily + 30s banked = 50s available, 60s requested.
	err := l.Consume(context.Background(), 1, 60)
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("err = %v, want ErrQuotaExhausted", err)
	}
	u := repo.usage[1]
	if u.UsedTodaySeconds != 880 || u.BankedBalanceSeconds != 30 {
		t.Fatalf("balances moved on rejected consume: used=%d banked=%d", u.UsedTodaySeconds, u.BankedBalanceSeconds)
	}
}

func TestConsumeRejectsNonPositive(t *testing.T) {
	l := newTestLedger(newFakeQuotaRepo(), time.Now())
	if err := l.Consume(context.Background(), 1, 0); err == nil {
		t.Fatal("consume of 0 seconds accepted")
	}
	if err := l.Consume(context.Background(), 1, -5); err == nil {
		t.Fatal("consume of negative seconds accepted")
	}
}

func TestConsumeAppliesStaleDailyReset(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	repo := newFakeQuotaRepo()
	seedUsage(repo, 1, 900, 900, 0, "2026-03-01") // yesterday, fully used
	l := newTestLedger(repo, now)

	if err := l.Consume(context.Background(), 1, 300); err != nil {
		t.Fatalf("Consume after day boundary: %v", err)
	}
	u := repo.usage[1]
	if u.LastUsageDate != "2026-03-02" {
		t.Fatalf("usage date = %s, want 2026-03-02", u.LastUsageDate)
	}
	if u.UsedTodaySeconds != 300 {
		t.Fatalf("used today = %d, want 300", u.UsedTodaySeconds)
	}
}

func TestConsumeUnlimitedPassIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeQuotaRepo()
	seedUsage(repo, 1, 900, 0, 0, models.UsageDate(now))
	repo.passes[1] = &models.UnlimitedPass{UserID: 1, ExpiresAt: now.AddDate(0, 0, 10)}
	l := newTestLedger(repo, now)

	if err := l.Consume(context.Background(), 1, 99999); err != nil {
		t.Fatalf("Consume under pass: %v", err)
	}
	if got := repo.usage[1].UsedTodaySeconds; got != 0 {
		t.Fatalf("used today = %d, want 0 (pass active)", got)
	}

	// Expired pass: normal accounting again.
	repo.passes[1].ExpiresAt = now.Add(-time.Hour)
	if err := l.Consume(context.Background(), 1, 60); err != nil {
		t.Fatalf("Consume after pass expiry: %v", err)
	}
	if got := repo.usage[1].UsedTodaySeconds; got != 60 {
		t.Fatalf("used today = %d, want 60", got)
	}
}

func TestConsumeRetriesOnContention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeQuotaRepo()
	seedUsage(repo, 1, 900, 0, 0, models.UsageDate(now))
	l := newTestLedger(repo, now)

	interfered := false
	repo.consumeInterference = func() {
		if interfered {
			return
		}
		interfered = true
		repo.mu.Lock()
		repo.usage[1].UsedTodaySeconds += 30
		repo.mu.Unlock()
	}

	if err := l.Consume(context.Background(), 1, 60); err != nil {
		t.Fatalf("Consume with one interfering writer: %v", err)
	}
	if got := repo.usage[1].UsedTodaySeconds; got != 90 {
		t.Fatalf("used today = %d, want 90 (30 interference + 60)", got)
	}
}

func TestApplyRechargeTurbo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeQuotaRepo()
	seedUsage(repo, 1, 900, 900, 0, models.UsageDate(now))
	l := newTestLedger(repo, now)

	rec, err := l.ApplyRecharge(context.Background(), 1, models.RechargeTypeTurbo)
	if err != nil {
		t.Fatalf("ApplyRecharge: %v", err)
	}
	if rec.Status != models.RechargeStatusApplied || rec.AmountSeconds != 900 {
		t.Fatalf("recharge = %+v, want applied/900s", rec)
	}

	u := repo.usage[1]
	if u.TurboBonusSeconds != 900 {
		t.Fatalf("turbo bonus = %d, want 900", u.TurboBonusSeconds)
	}
	// Daily limit was exhausted; the bonus reopens exactly the bonus amount.
	if got := u.DailyRemaining(now); got != 900 {
		t.Fatalf("remaining = %d, want 900", got)
	}
	// After the 24h window the bonus stops counting.
	if got := u.DailyRemaining(now.Add(25 * time.Hour)); got != 0 {
		t.Fatalf("remaining after expiry = %d, want 0", got)
	}
	if len(repo.recharges) != 1 {
		t.Fatalf("recorded %d recharges, want 1", len(repo.recharges))
	}
}

func TestApplyRechargeBank(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeQuotaRepo()
	l := newTestLedger(repo, now)

	rec, err := l.ApplyRecharge(context.Background(), 1, models.RechargeTypeBank100)
	if err != nil {
		t.Fatalf("ApplyRecharge: %v", err)
	}
	if rec.AmountSeconds != 6000 {
		t.Fatalf("amount = %d, want 6000", rec.AmountSeconds)
	}
	if got := repo.usage[1].BankedBalanceSeconds; got != 6000 {
		t.Fatalf("banked = %d, want 6000", got)
	}
}

func TestApplyRechargeUnlimitedStacksFromCurrentExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeQuotaRepo()
	l := newTestLedger(repo, now)

	if _, err := l.ApplyRecharge(context.Background(), 1, models.RechargeTypeUnlimited30); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	first := repo.passes[1].ExpiresAt
	if want := now.AddDate(0, 0, 30); !first.Equal(want) {
		t.Fatalf("first expiry = %v, want %v", first, want)
	}

	// A second purchase extends from the current expiry, not from now.
	if _, err := l.ApplyRecharge(context.Background(), 1, models.RechargeTypeUnlimited30); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if want := first.AddDate(0, 0, 30); !repo.passes[1].ExpiresAt.Equal(want) {
		t.Fatalf("stacked expiry = %v, want %v", repo.passes[1].ExpiresAt, want)
	}
}

func TestApplyRechargeUnknownType(t *testing.T) {
	l := newTestLedger(newFakeQuotaRepo(), time.Now())
	if _, err := l.ApplyRecharge(context.Background(), 1, "mega_ultra"); !errors.Is(err, ErrInvalidRecharge) {
		t.Fatalf("err = %v, want ErrInvalidRecharge", err)
	}
}
