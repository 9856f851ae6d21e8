package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/fitvox/FitVox/internal/pkg/env"
	"github.com/fitvox/FitVox/internal/pkg/metrics/counter"
	"github.com/fitvox/FitVox/internal/pkg/quota"
	"github.com/fitvox/FitVox/internal/pkg/security"
	"github.com/fitvox/FitVox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleConsumeVoice deducts voice seconds from the caller's quota. The
// deduction is all-or-nothing: an exhausted quota rejects the request and
// leaves the balances untouched.
func HandleConsumeVoice(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req struct {
		Seconds int64 `json:"seconds"`
	}
	if err := c.BodyParser(&req); err != nil || req.Seconds <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Field 'seconds' must be a positive integer"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	stack := newBillingStack()
	if err := stack.ledger.Consume(ctx, userCtx.UserID, req.Seconds); err != nil {
		if errors.Is(err, quota.ErrQuotaExhausted) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "quota_exhausted", "message": "Voice quota exhausted, purchase a recharge or upgrade"})
		}
		log.Errorf("voice consume for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Quota update failed"})
	}

	// Usage counters are best-effort and never block the request.
	if err := counter.AddVoiceRequest(userCtx.UserID); err != nil {
		log.Debugf("voice request counter for user %d failed: %v", userCtx.UserID, err)
	}
	if err := counter.AddVoiceSeconds(userCtx.UserID, req.Seconds); err != nil {
		log.Debugf("voice seconds counter for user %d failed: %v", userCtx.UserID, err)
	}

	snap, err := stack.resolver.Resolve(ctx, userCtx.UserID)
	if err != nil {
		// The consume already happened; report success without balances.
		log.Warnf("post-consume snapshot for user %d failed: %v", userCtx.UserID, err)
		return c.JSON(fiber.Map{"ok": true})
	}
	return c.JSON(fiber.Map{
		"ok":    true,
		"voice": snap.Voice,
	})
}

const voiceSessionTTL = 15 * time.Minute

// HandleCreateVoiceSession issues a short-lived signed grant for the realtime
// voice gateway. The grant snapshots the remaining quota; settlement still
// goes through the ledger when the session ends.
func HandleCreateVoiceSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	secret := env.GetEnv("VOICE_SESSION_SECRET", "")
	if secret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Voice sessions are not configured"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	snap, err := newBillingStack().resolver.Resolve(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("resolving entitlements for voice session of user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve entitlements"})
	}

	claims := security.VoiceSessionClaims{
		UserID:    userCtx.UserID,
		Plan:      snap.Plan,
		Unlimited: snap.Voice.Unlimited,
	}
	if !snap.Voice.Unlimited {
		claims.MaxSeconds = snap.Voice.DailyRemainingSeconds + snap.Voice.BankedSeconds
		if claims.MaxSeconds <= 0 {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "quota_exhausted", "message": "Voice quota exhausted, purchase a recharge or upgrade"})
		}
	}

	token, err := security.GenerateVoiceSessionToken(claims, voiceSessionTTL, secret)
	if err != nil {
		log.Errorf("voice session token for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Token generation failed"})
	}

	return c.JSON(fiber.Map{
		"ok":          true,
		"token":       token,
		"unlimited":   claims.Unlimited,
		"max_seconds": claims.MaxSeconds,
		"expires_in":  int(voiceSessionTTL.Seconds()),
	})
}
