package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

type AdminRouter struct {
	cfg Config
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	auth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.cfg.AdminUser: h.cfg.AdminPassword,
		},
	})

	adminGroup := app.Group("/admin", auth)
	adminGroup.Post("/sweep", h.cfg.Handlers.HandleTriggerSweep)
	adminGroup.Get("/queue", h.cfg.Handlers.HandleQueueStats)

	app.Get("/metrics", auth, adaptor.HTTPHandler(h.cfg.Metrics.Handler()))
}

func NewAdminRouter(cfg Config) *AdminRouter {
	return &AdminRouter{cfg: cfg}
}
