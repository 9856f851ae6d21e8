package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/fitvox/FitVox/app/models"
	"github.com/fitvox/FitVox/app/repository"
	"github.com/fitvox/FitVox/internal/pkg/env"
	"github.com/fitvox/FitVox/internal/pkg/hcaptcha"
	"github.com/fitvox/FitVox/internal/pkg/usercontext"
	"github.com/fitvox/FitVox/internal/pkg/utils"
)

// HandleRegisterUser creates a new account and mails an activation link. The
// account stays inactive until the token is redeemed.
func HandleRegisterUser(c *fiber.Ctx) error {
	var req struct {
		Name         string `json:"name"`
		Email        string `json:"email"`
		Password     string `json:"password"`
		CaptchaToken string `json:"captcha_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	// Captcha is enforced only when a secret is configured.
	if env.GetEnv("HCAPTCHA_SECRET", "") != "" {
		if ok, err := hcaptcha.Verify(req.CaptchaToken); !ok {
			log.Debugf("captcha verification failed: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "captcha_failed", "message": "Captcha verification failed"})
		}
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := repo.GetByEmail(strings.TrimSpace(req.Email)); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email_taken", "message": "Email is already registered"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	user, err := models.CreateUser(strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := user.GenerateActivationToken(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}
	if err := repo.Create(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	notifyByMail(user.Email, "Activate your FitVox account",
		"Welcome to FitVox! Your activation token: "+user.ActivationToken)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ok":     true,
		"id":     user.ID,
		"status": user.Status,
	})
}

// HandleActivateUser redeems an activation token.
func HandleActivateUser(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Fields 'email' and 'token' are required"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(strings.TrimSpace(req.Email))
	if err != nil || user.ActivationToken == "" || user.ActivationToken != strings.TrimSpace(req.Token) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_token", "message": "Invalid activation token"})
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := repo.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Activation failed"})
	}
	return c.JSON(fiber.Map{"ok": true, "status": user.Status})
}

// HandleLoginUser verifies credentials and issues a fresh API key. The raw
// key is only ever returned here; we store its hash.
func HandleLoginUser(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(strings.TrimSpace(req.Email))
	if err != nil || !user.CheckPassword(req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_credentials", "message": "Wrong email or password"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "inactive", "message": "Account not activated"})
	}

	settings, err := repo.GetOrCreateSettings(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}
	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}
	if err := repo.SaveSettings(settings); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := repo.Update(user); err != nil {
		log.Warnf("updating last login for user %d failed: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"api_key": rawKey,
		"plan":    settings.Plan,
	})
}

// HandleGetUserAccount returns account information for the authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}
	settings, err := repo.GetOrCreateSettings(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}

	plan := settings.Plan
	if plan == "" {
		plan = "free"
	}

	return c.JSON(fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"avatar_url":           utils.GetGravatarURL(account.Email, 200),
		"status":               account.Status,
		"plan":                 plan,
		"is_admin":             account.Role == models.ROLE_ADMIN,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":        formatTimePtr(account.LastLoginAt),
		"api_key_prefix":       settings.APIKeyPrefix,
		"api_key_last_used_at": formatTimePtr(settings.APIKeyLastUsedAt),
		"preferences": fiber.Map{
			"voice_replies":       settings.PrefVoiceReplies,
			"daily_summary_email": settings.PrefDailySummaryEmail,
		},
	})
}

// HandleRotateAPIKey replaces the caller's API key and returns the new secret.
func HandleRotateAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetUserRepository()
	settings, err := repo.GetOrCreateSettings(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}
	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Key generation failed"})
	}
	if err := repo.SaveSettings(settings); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Key rotation failed"})
	}
	return c.JSON(fiber.Map{"ok": true, "api_key": rawKey})
}

// HandleRevokeAPIKey revokes the caller's API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetUserRepository()
	settings, err := repo.GetOrCreateSettings(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}
	settings.RevokeAPIKey()
	if err := repo.SaveSettings(settings); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Key revocation failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
