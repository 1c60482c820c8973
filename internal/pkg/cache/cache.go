package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TeamPay/internal/pkg/env"
)

// Config describes the Redis connection shared by the job queue and the
// rate limiter storage.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConfigFromEnv reads CACHE_HOST, CACHE_PORT, CACHE_PASSWORD and CACHE_DB.
func ConfigFromEnv() Config {
	return Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     env.GetEnvInt("CACHE_PORT", 6379),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	}
}

// SetupCache opens a client and checks the connection. An unreachable server
// is only logged; go-redis reconnects on the next command.
func SetupCache(cfg Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to redis at %s: %v", cfg.Addr(), err)
	} else {
		log.Infof("[Cache] Connected to redis at %s: %s", cfg.Addr(), pong)
	}
	return client
}

// ErrLockNotHeld is returned by Unlock when the lock expired or belongs to
// someone else.
var ErrLockNotHeld = errors.New("lock not held")

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock takes a short-lived exclusive lock. token identifies the holder and
// must be passed to Unlock.
func TryLock(ctx context.Context, client *redis.Client, key, token string, ttl time.Duration) (bool, error) {
	return client.SetNX(ctx, key, token, ttl).Result()
}

// Unlock releases a lock taken with TryLock, but only if token still owns it.
func Unlock(ctx context.Context, client *redis.Client, key, token string) error {
	n, err := unlockScript.Run(ctx, client, []string{key}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
