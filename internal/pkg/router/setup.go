package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TeamPay/app/controllers"
	"github.com/ManuelReschke/TeamPay/internal/pkg/metrics"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Config carries what the routers need from main.
type Config struct {
	Handlers *controllers.Handlers
	Metrics  *metrics.Collector
	// LimiterStorage backs the API rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	LimiterMax     int
	AdminUser      string
	AdminPassword  string
}

func InstallRouter(app *fiber.App, cfg Config) {
	setup(app, NewApiRouter(cfg), NewWebhookRouter(cfg), NewAdminRouter(cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
