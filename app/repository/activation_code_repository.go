package repository

import (
	"strings"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"gorm.io/gorm"
)

// activationCodeRepository implements the ActivationCodeRepository interface
type activationCodeRepository struct {
	db *gorm.DB
}

// NewActivationCodeRepository creates a new activation code repository instance
func NewActivationCodeRepository(db *gorm.DB) ActivationCodeRepository {
	return &activationCodeRepository{db: db}
}

// Create stores a new activation code
func (r *activationCodeRepository) Create(code *models.ActivationCode) error {
	return r.db.Create(code).Error
}

// GetByCode retrieves an activation code by its code string
func (r *activationCodeRepository) GetByCode(code string) (*models.ActivationCode, error) {
	var ac models.ActivationCode
	err := r.db.Where("code = ?", strings.TrimSpace(code)).First(&ac).Error
	if err != nil {
		return nil, err
	}
	return &ac, nil
}

// MarkRedeemed claims a code for a user. The is_redeemed guard makes the
// claim first-wins under concurrent redemption attempts.
func (r *activationCodeRepository) MarkRedeemed(id uint, userID uint, at time.Time) (bool, error) {
	tx := r.db.Model(&models.ActivationCode{}).
		Where("id = ? AND is_redeemed = ?", id, false).
		Updates(map[string]interface{}{
			"is_redeemed":         true,
			"redeemed_by_user_id": userID,
			"redeemed_at":         at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
