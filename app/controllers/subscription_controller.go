package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/internal/pkg/billing"
	"github.com/fitvox/FitVox/internal/pkg/entitlements"
	"github.com/fitvox/FitVox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const requestTimeout = 15 * time.Second

// HandleGetEntitlements returns the caller's resolved entitlement snapshot.
// Voice balances are reported in both seconds and whole minutes.
func HandleGetEntitlements(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	snap, err := newBillingStack().resolver.Resolve(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("resolving entitlements for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve entitlements"})
	}

	voice := fiber.Map{
		"unlimited": snap.Voice.Unlimited,
	}
	if snap.Voice.Unlimited {
		voice["unlimited_until"] = formatTimePtr(snap.Voice.UnlimitedUntil)
	} else {
		voice["daily_limit_seconds"] = snap.Voice.DailyLimitSeconds
		voice["daily_remaining_seconds"] = snap.Voice.DailyRemainingSeconds
		voice["daily_remaining_minutes"] = secondsToMinutes(snap.Voice.DailyRemainingSeconds)
		voice["banked_seconds"] = snap.Voice.BankedSeconds
		voice["banked_minutes"] = secondsToMinutes(snap.Voice.BankedSeconds)
	}

	return c.JSON(fiber.Map{
		"plan":        snap.Plan,
		"status":      snap.Status,
		"features":    snap.Features,
		"voice":       voice,
		"can_upgrade": snap.CanUpgrade,
		"period_end":  formatTimePtr(snap.PeriodEnd),
	})
}

// HandleListPlans returns the purchasable plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	plans := entitlements.ListPlans()
	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		out = append(out, fiber.Map{
			"name":                p.Name,
			"family":              string(p.Family),
			"billing_interval":    p.BillingInterval,
			"daily_voice_seconds": p.DailyVoiceSeconds,
			"daily_voice_minutes": secondsToMinutes(p.DailyVoiceSeconds),
			"price_cents":         p.PriceCents,
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}

// HandleCancelSubscription cancels the caller's subscription. The response is
// a success whenever the user ends up canceled locally, even if the provider
// could not be reached.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	stack := newBillingStack()

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	sub, err := stack.repos.Subscription.GetEntitlingByUser(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No active subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Subscription lookup failed"})
	}

	if err := stack.reconciler.Cancel(ctx, sub); err != nil {
		log.Errorf("canceling subscription %d failed: %v", sub.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Cancellation failed"})
	}

	return c.JSON(fiber.Map{
		"ok":     true,
		"status": models.SubscriptionStatusCanceled,
	})
}

// HandleChangePlan switches the caller to another paid plan.
func HandleChangePlan(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req struct {
		Plan string `json:"plan"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Plan) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Field 'plan' is required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	result, err := newBillingStack().changer.ChangePlan(ctx, userCtx.UserID, req.Plan)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrSamePlan):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "same_plan", "message": "Already subscribed to this plan"})
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No active subscription to change"})
	case errors.Is(err, entitlements.ErrUnknownPlan):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_plan", "message": "Unknown or non-purchasable plan"})
	default:
		log.Errorf("plan change for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Plan change failed"})
	}

	return c.JSON(fiber.Map{
		"ok":             true,
		"direction":      result.Direction,
		"old_plan":       result.OldPlan,
		"new_plan":       result.NewPlan,
		"old_plan_until": formatTimePtr(result.OldPlanUntil),
		"period_end":     result.NewSub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
	})
}

// HandleApplyRecharge grants a purchased quota top-up to the caller.
func HandleApplyRecharge(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req struct {
		Type string `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil || !models.IsValidRechargeType(req.Type) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Field 'type' must be one of turbo, bank_100, unlimited_30"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	recharge, err := newBillingStack().ledger.ApplyRecharge(ctx, userCtx.UserID, req.Type)
	if err != nil {
		log.Errorf("recharge %s for user %d failed: %v", req.Type, userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Recharge failed"})
	}

	return c.JSON(fiber.Map{
		"ok":             true,
		"recharge_id":    recharge.ID,
		"type":           recharge.Type,
		"amount_seconds": recharge.AmountSeconds,
		"expires_at":     formatTimePtr(recharge.ExpiresAt),
	})
}

// HandleRedeemActivationCode redeems a one-time code for a plan period.
// Redemption is first-wins: two concurrent requests for the same code cannot
// both succeed.
func HandleRedeemActivationCode(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	stack := newBillingStack()

	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Field 'code' is required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), requestTimeout)
	defer cancel()

	code, err := stack.repos.ActivationCode.GetByCode(strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown activation code"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Code lookup failed"})
	}
	now := time.Now()
	if !code.IsRedeemable(now) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_redeemable", "message": "Code already redeemed or expired"})
	}

	plan, err := entitlements.LookupPlan(code.PlanName)
	if err != nil {
		log.Errorf("activation code %d references unknown plan %q", code.ID, code.PlanName)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Code misconfigured"})
	}

	claimed, err := stack.repos.ActivationCode.MarkRedeemed(code.ID, userCtx.UserID, now)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Redemption failed"})
	}
	if !claimed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_redeemable", "message": "Code already redeemed"})
	}

	sub, err := stack.lifecycle.Activate(ctx, userCtx.UserID, plan, "activation_code", "code:"+code.Code, false)
	if err != nil {
		log.Errorf("activating code %d for user %d failed: %v", code.ID, userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Activation failed"})
	}

	return c.JSON(fiber.Map{
		"ok":         true,
		"plan":       plan.Name,
		"period_end": sub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
	})
}

// HandleRunSweep triggers one renewal sweep (admin only).
func HandleRunSweep(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Minute)
	defer cancel()

	result, err := newBillingStack().sweeper.Run(ctx, time.Now())
	if err != nil {
		log.Errorf("manual renewal sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Sweep failed"})
	}
	return c.JSON(fiber.Map{
		"ok":       true,
		"due":      result.Due,
		"renewed":  result.Renewed,
		"expired":  result.Expired,
		"past_due": result.PastDue,
		"canceled": result.Canceled,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
	})
}
