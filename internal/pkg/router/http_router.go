package router

import (
	"github.com/fitvox/FitVox/app/controllers"
	"github.com/fitvox/FitVox/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

// InstallRouter registers the unauthenticated surface: health probe, account
// bootstrap and the provider webhook. The webhook authenticates itself via
// the shared secret header, not via API keys.
func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post(constants.WebhookRoute, controllers.HandlePayGateWebhook)

	auth := app.Group("/auth")
	auth.Post("/register", controllers.HandleRegisterUser)
	auth.Post("/activate", controllers.HandleActivateUser)
	auth.Post("/login", controllers.HandleLoginUser)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
