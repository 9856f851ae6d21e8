package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrQuotaExhausted is returned when a consume request exceeds the total
// available balance. User-facing; recoverable by purchasing a recharge.
var ErrQuotaExhausted = errors.New("quota: voice quota exhausted")

// ErrInvalidRecharge is returned for unknown recharge types.
var ErrInvalidRecharge = errors.New("quota: invalid recharge type")

const (
	// turboBonusSeconds is the extra daily allowance a turbo recharge grants
	// for 24 hours.
	turboBonusSeconds int64 = 900
	// bankRechargeSeconds is the balance a bank_100 recharge adds (100 min).
	bankRechargeSeconds int64 = 6000
	// unlimitedPassDays is the extension one unlimited_30 recharge grants.
	unlimitedPassDays = 30

	// consumeRetries bounds the optimistic CAS loop in Consume.
	consumeRetries = 3
)

// Ledger owns all mutations of the per-user voice balances. Consumption and
// the daily reset are serialized per user through conditional single-row
// updates; different users never contend.
type Ledger struct {
	repo repository.QuotaRepository
	now  func() time.Time
}

// NewLedger creates a quota ledger from the shared repositories.
func NewLedger(repos *repository.Repositories) *Ledger {
	return &Ledger{repo: repos.Quota, now: time.Now}
}

// pass loads the user's unlimited pass, mapping "no pass" to nil.
func (l *Ledger) pass(userID uint) (*models.UnlimitedPass, error) {
	pass, err := l.repo.GetUnlimitedPass(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return pass, nil
}

// DailyReset zeroes today's usage if the stored usage date is stale. The
// conditional update applies exactly once per UTC day boundary no matter how
// many concurrent callers race across it.
func (l *Ledger) DailyReset(ctx context.Context, userID uint) error {
	_ = ctx
	if _, err := l.repo.GetOrCreateUsage(userID); err != nil {
		return err
	}
	reset, err := l.repo.ResetDaily(userID, models.UsageDate(l.now()))
	if err != nil {
		return err
	}
	if reset {
		log.Debugf("quota: daily reset applied for user %d", userID)
	}
	return nil
}

// Consume deducts seconds from the daily allowance first and spills the
// remainder into the banked balance. If the total available is smaller than
// requested it fails with ErrQuotaExhausted and deducts nothing. An active
// unlimited pass makes the call a no-op.
func (l *Ledger) Consume(ctx context.Context, userID uint, seconds int64) error {
	_ = ctx
	if seconds <= 0 {
		return fmt.Errorf("quota: consume seconds must be positive, got %d", seconds)
	}
	now := l.now()

	pass, err := l.pass(userID)
	if err != nil {
		return err
	}
	if pass.IsActive(now) {
		return nil
	}

	if err := l.DailyReset(ctx, userID); err != nil {
		return err
	}

	for attempt := 0; attempt < consumeRetries; attempt++ {
		usage, err := l.repo.GetOrCreateUsage(userID)
		if err != nil {
			return err
		}

		dailyRemaining := usage.DailyRemaining(now)
		if dailyRemaining+usage.BankedBalanceSeconds < seconds {
			return ErrQuotaExhausted
		}

		fromDaily := seconds
		if fromDaily > dailyRemaining {
			fromDaily = dailyRemaining
		}
		fromBanked := seconds - fromDaily

		ok, err := l.repo.TryConsume(usage, fromDaily, fromBanked)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// A concurrent consumer moved the balances; re-read and retry.
	}
	return fmt.Errorf("quota: consume contention for user %d, giving up", userID)
}

// ApplyRecharge grants a purchased top-up and records the recharge for audit.
func (l *Ledger) ApplyRecharge(ctx context.Context, userID uint, rechargeType string) (*models.Recharge, error) {
	_ = ctx
	now := l.now()

	recharge := &models.Recharge{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   rechargeType,
		Status: models.RechargeStatusPending,
	}

	switch rechargeType {
	case models.RechargeTypeTurbo:
		expires := now.Add(24 * time.Hour)
		if err := l.repo.ApplyTurbo(userID, turboBonusSeconds, expires); err != nil {
			return nil, err
		}
		recharge.AmountSeconds = turboBonusSeconds
		recharge.ExpiresAt = &expires

	case models.RechargeTypeBank100:
		if err := l.repo.AddBanked(userID, bankRechargeSeconds); err != nil {
			return nil, err
		}
		recharge.AmountSeconds = bankRechargeSeconds

	case models.RechargeTypeUnlimited30:
		base := now
		if pass, err := l.pass(userID); err != nil {
			return nil, err
		} else if pass != nil && pass.ExpiresAt.After(base) {
			base = pass.ExpiresAt
		}
		expires := base.AddDate(0, 0, unlimitedPassDays)
		if err := l.repo.UpsertUnlimitedPass(userID, expires); err != nil {
			return nil, err
		}
		recharge.ExpiresAt = &expires

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecharge, rechargeType)
	}

	recharge.Status = models.RechargeStatusApplied
	recharge.AppliedAt = &now
	if err := l.repo.CreateRecharge(recharge); err != nil {
		// The grant already happened; the missing audit row is logged, not
		// rolled back.
		log.Errorf("quota: recording recharge %s for user %d failed: %v", recharge.ID, userID, err)
	}
	return recharge, nil
}
