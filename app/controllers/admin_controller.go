package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"github.com/fitvox/FitVox/internal/pkg/codegen"
	"github.com/fitvox/FitVox/internal/pkg/entitlements"
	"github.com/fitvox/FitVox/internal/pkg/statistics"
)

// HandleGetAdminStats returns operational counters for the admin dashboard.
func HandleGetAdminStats(c *fiber.Ctx) error {
	stats := statistics.GetStatisticsData()
	return c.JSON(fiber.Map{
		"total_users":          stats.TotalUsers,
		"active_subscriptions": stats.ActiveSubscriptions,
		"today_voice_seconds":  stats.TodayVoiceSeconds,
		"today_voice_minutes":  secondsToMinutes(stats.TodayVoiceSeconds),
		"today_revenue_cents":  stats.TodayRevenueCents,
	})
}

const maxCodesPerBatch = 100

// HandleCreateActivationCodes mints a batch of single-use activation codes
// for a plan (admin only). Codes are random Base62 with the FV- prefix.
func HandleCreateActivationCodes(c *fiber.Ctx) error {
	var req struct {
		Plan          string `json:"plan"`
		Count         int    `json:"count"`
		ExpiresInDays int    `json:"expires_in_days"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	plan, err := entitlements.LookupPlan(req.Plan)
	if err != nil || plan.Rank == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_plan", "message": "Field 'plan' must name a purchasable plan"})
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	if count > maxCodesPerBatch {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Field 'count' exceeds the batch limit"})
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	repo := repository.GetGlobalRepositories().ActivationCode
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := codegen.GenerateActivationCode()
		if err != nil {
			log.Errorf("activation code generation failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Code generation failed"})
		}
		record := &models.ActivationCode{
			Code:      code,
			PlanName:  plan.Name,
			ExpiresAt: expiresAt,
		}
		if err := repo.Create(record); err != nil {
			log.Errorf("storing activation code failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Code creation failed"})
		}
		codes = append(codes, code)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ok":         true,
		"plan":       plan.Name,
		"codes":      codes,
		"expires_at": formatTimePtr(expiresAt),
	})
}
