package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/TeamPay/app/controllers"
	"github.com/ManuelReschke/TeamPay/app/repository"
	"github.com/ManuelReschke/TeamPay/internal/pkg/billing"
	"github.com/ManuelReschke/TeamPay/internal/pkg/cache"
	"github.com/ManuelReschke/TeamPay/internal/pkg/database"
	"github.com/ManuelReschke/TeamPay/internal/pkg/env"
	"github.com/ManuelReschke/TeamPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
	"github.com/ManuelReschke/TeamPay/internal/pkg/metrics"
	"github.com/ManuelReschke/TeamPay/internal/pkg/router"
)

func main() {
	app, manager, err := NewApplication()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	manager.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down")
		manager.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	if err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager, error) {
	env.SetupEnvFile()

	adminUser, adminPassword, err := adminCredentials()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.SetupDatabase()
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	cacheCfg := cache.ConfigFromEnv()
	client := cache.SetupCache(cacheCfg)

	engineCfg, err := membership.ConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("membership config: %w", err)
	}

	collector := metrics.NewCollector()
	engine := membership.NewServiceFromDB(db, engineCfg)
	manager := jobqueue.NewManager(client, engine, jobqueue.ManagerConfigFromEnv(), collector)

	handlers := controllers.NewHandlers(controllers.Handlers{
		Teams:       repository.NewFactory(db).GetTeamRepository(),
		Memberships: engine,
		Billing:     billing.NewServiceFromDB(db, engine, collector),
		Stripe:      billing.NewStripeWebhook(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		Sweeps:      manager,
		Queue:       manager.GetQueue(),
		Metrics:     collector,
	})

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app, router.Config{
		Handlers:       handlers,
		Metrics:        collector,
		LimiterStorage: cache.NewFiberStorage(cacheCfg, cache.LimiterDB),
		LimiterMax:     env.GetEnvInt("API_RATE_LIMIT", 60),
		AdminUser:      adminUser,
		AdminPassword:  adminPassword,
	})

	return app, manager, nil
}

// adminCredentials guards the sweep trigger and metrics. There is no default
// password; the service does not start without one.
func adminCredentials() (string, string, error) {
	password := strings.TrimSpace(env.GetEnv("ADMIN_PASSWORD", ""))
	if password == "" {
		return "", "", errors.New("ADMIN_PASSWORD must be set")
	}
	return env.GetEnv("ADMIN_USER", "admin"), password, nil
}
