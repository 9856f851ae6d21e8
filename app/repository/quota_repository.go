package repository

import (
	"errors"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// quotaRepository implements the QuotaRepository interface
type quotaRepository struct {
	db *gorm.DB
}

// NewQuotaRepository creates a new quota repository instance
func NewQuotaRepository(db *gorm.DB) QuotaRepository {
	return &quotaRepository{db: db}
}

// GetOrCreateUsage returns the usage row for a user, creating an empty ledger if absent
func (r *quotaRepository) GetOrCreateUsage(userID uint) (*models.VoiceUsage, error) {
	var usage models.VoiceUsage
	err := r.db.Where("user_id = ?", userID).First(&usage).Error
	if err == nil {
		return &usage, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	usage = models.VoiceUsage{UserID: userID, LastUsageDate: models.UsageDate(time.Now())}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&usage).Error; err != nil {
		return nil, err
	}
	// Re-read so a concurrent creator's row wins.
	if err := r.db.Where("user_id = ?", userID).First(&usage).Error; err != nil {
		return nil, err
	}
	return &usage, nil
}

// ResetDaily applies the once-per-day usage reset. The WHERE clause on
// last_usage_date makes the write conditional: under concurrent callers at a
// day boundary exactly one UPDATE hits a row. Returns whether this call
// performed the reset.
func (r *quotaRepository) ResetDaily(userID uint, today string) (bool, error) {
	tx := r.db.Model(&models.VoiceUsage{}).
		Where("user_id = ? AND last_usage_date <> ?", userID, today).
		Updates(map[string]interface{}{
			"used_today_seconds": 0,
			"last_usage_date":    today,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// TryConsume applies a precomputed daily/banked split as one compare-and-set
// UPDATE against the balances the caller read. Zero rows affected means a
// concurrent consumer moved the balances first; the caller re-reads and
// retries.
func (r *quotaRepository) TryConsume(usage *models.VoiceUsage, fromDaily, fromBanked int64) (bool, error) {
	tx := r.db.Model(&models.VoiceUsage{}).
		Where("user_id = ? AND last_usage_date = ? AND used_today_seconds = ? AND banked_balance_seconds = ?",
			usage.UserID, usage.LastUsageDate, usage.UsedTodaySeconds, usage.BankedBalanceSeconds).
		Updates(map[string]interface{}{
			"used_today_seconds":     gorm.Expr("used_today_seconds + ?", fromDaily),
			"banked_balance_seconds": gorm.Expr("banked_balance_seconds - ?", fromBanked),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// SetDailyLimit sets the plan-derived daily allowance for a user
func (r *quotaRepository) SetDailyLimit(userID uint, dailyLimitSeconds int64) error {
	if _, err := r.GetOrCreateUsage(userID); err != nil {
		return err
	}
	return r.db.Model(&models.VoiceUsage{}).
		Where("user_id = ?", userID).
		Update("daily_limit_seconds", dailyLimitSeconds).Error
}

// ApplyTurbo grants a time-bounded bonus on top of the daily allowance
func (r *quotaRepository) ApplyTurbo(userID uint, bonusSeconds int64, expiresAt time.Time) error {
	if _, err := r.GetOrCreateUsage(userID); err != nil {
		return err
	}
	return r.db.Model(&models.VoiceUsage{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"turbo_bonus_seconds": bonusSeconds,
			"turbo_expires_at":    expiresAt,
		}).Error
}

// AddBanked atomically increments the banked balance
func (r *quotaRepository) AddBanked(userID uint, seconds int64) error {
	if _, err := r.GetOrCreateUsage(userID); err != nil {
		return err
	}
	return r.db.Model(&models.VoiceUsage{}).
		Where("user_id = ?", userID).
		Update("banked_balance_seconds", gorm.Expr("banked_balance_seconds + ?", seconds)).Error
}

// GetUnlimitedPass returns the user's unlimited pass row, or nil if none exists
func (r *quotaRepository) GetUnlimitedPass(userID uint) (*models.UnlimitedPass, error) {
	var pass models.UnlimitedPass
	err := r.db.Where("user_id = ?", userID).First(&pass).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pass, nil
}

// UpsertUnlimitedPass creates or updates the user's unlimited pass expiry
func (r *quotaRepository) UpsertUnlimitedPass(userID uint, expiresAt time.Time) error {
	pass := models.UnlimitedPass{UserID: userID, ExpiresAt: expiresAt}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at", "updated_at"}),
	}).Create(&pass).Error
}

// CreateRecharge records a recharge purchase
func (r *quotaRepository) CreateRecharge(recharge *models.Recharge) error {
	return r.db.Create(recharge).Error
}
