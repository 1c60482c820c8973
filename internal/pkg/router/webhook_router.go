package router

import (
	"github.com/gofiber/fiber/v2"
)

// WebhookRouter serves payment provider callbacks. They are authenticated by
// signature and stay outside the API rate limit.
type WebhookRouter struct {
	cfg Config
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	hooks := app.Group("/webhooks")
	hooks.Post("/stripe", h.cfg.Handlers.HandleStripeWebhook)
}

func NewWebhookRouter(cfg Config) *WebhookRouter {
	return &WebhookRouter{cfg: cfg}
}
