package router

import (
	"strconv"
	"time"

	"github.com/fitvox/FitVox/app/controllers"
	"github.com/fitvox/FitVox/internal/pkg/env"
	"github.com/fitvox/FitVox/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        apiRateLimit(),
		Expiration: time.Minute,
		Storage:    limiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all behind API key authentication
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	v1.Get("/user/profile", controllers.HandleGetUserAccount)
	v1.Post("/user/api-key", controllers.HandleRotateAPIKey)
	v1.Delete("/user/api-key", controllers.HandleRevokeAPIKey)

	v1.Get("/plans", controllers.HandleListPlans)
	v1.Get("/entitlements", controllers.HandleGetEntitlements)

	v1.Post("/subscription/cancel", controllers.HandleCancelSubscription)
	v1.Post("/subscription/change-plan", controllers.HandleChangePlan)

	v1.Post("/voice/consume", controllers.HandleConsumeVoice)
	v1.Post("/voice/session", controllers.HandleCreateVoiceSession)
	v1.Post("/recharges", controllers.HandleApplyRecharge)
	v1.Post("/activation-codes/redeem", controllers.HandleRedeemActivationCode)

	admin := v1.Group("/admin", middleware.RequireAdmin)
	admin.Post("/sweep", controllers.HandleRunSweep)
	admin.Get("/stats", controllers.HandleGetAdminStats)
	admin.Post("/activation-codes", controllers.HandleCreateActivationCodes)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// limiterStorage backs the rate limiter with redis so limits hold across
// instances. Falls back to in-memory storage when redis is not configured.
func limiterStorage() fiber.Storage {
	host := env.GetEnv("CACHE_HOST", "")
	if host == "" {
		return nil
	}
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Database: 1,
	})
}

func apiRateLimit() int {
	if v, err := strconv.Atoi(env.GetEnv("API_RATE_LIMIT_PER_MINUTE", "")); err == nil && v > 0 {
		return v
	}
	return 120
}
