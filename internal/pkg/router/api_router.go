package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/TeamPay/app/controllers"
)

type ApiRouter struct {
	cfg Config
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limit := h.cfg.LimiterMax
	if limit <= 0 {
		limit = 60
	}
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:          limit,
		Expiration:   time.Minute,
		KeyGenerator: controllers.ClientKey,
		Storage:      h.cfg.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests, try again later",
			})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	hd := h.cfg.Handlers
	v1 := api.Group("/v1")
	v1.Post("/teams", hd.HandleCreateTeam)
	v1.Get("/teams/:id", hd.HandleGetTeam)
	v1.Put("/teams/:id/schedule", hd.HandleUpdateSchedule)
	v1.Get("/teams/:id/memberships", hd.HandleListMemberships)
	v1.Post("/join/:code", hd.HandleJoin)
	v1.Get("/memberships/:id", hd.HandleGetMembership)
	v1.Put("/memberships/:id/due-date", hd.HandleSetDueDate)
	v1.Post("/memberships/:id/payments", hd.HandleManualPayment)
	v1.Post("/memberships/:id/cancel", hd.HandleCancel)
}

func NewApiRouter(cfg Config) *ApiRouter {
	return &ApiRouter{cfg: cfg}
}
