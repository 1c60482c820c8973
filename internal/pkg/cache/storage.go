package cache

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
)

// LimiterDB keeps rate limiter counters apart from the job queue keys.
const LimiterDB = 1

// NewFiberStorage returns a fiber.Storage on the same Redis server, in the
// given logical database. It panics when the server is unreachable.
func NewFiberStorage(cfg Config, database int) fiber.Storage {
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		Database: database,
		Reset:    false,
	})
}
