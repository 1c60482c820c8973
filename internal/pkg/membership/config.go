package membership

import (
	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/TeamPay/internal/pkg/env"
)

// Config holds the tunables of the status engine.
type Config struct {
	GraceDays       int `validate:"min=0,max=90"`
	BatchSize       int `validate:"min=1,max=5000"`
	Workers         int `validate:"min=1,max=64"`
	MaxStaleRetries int `validate:"min=0,max=10"`
}

// DefaultConfig returns the defaults used when no environment is set.
func DefaultConfig() Config {
	return Config{
		GraceDays:       7,
		BatchSize:       200,
		Workers:         4,
		MaxStaleRetries: 3,
	}
}

// ConfigFromEnv reads the engine configuration from the environment.
func ConfigFromEnv() (Config, error) {
	def := DefaultConfig()
	cfg := Config{
		GraceDays:       env.GetEnvInt("MEMBERSHIP_GRACE_DAYS", def.GraceDays),
		BatchSize:       env.GetEnvInt("SWEEP_BATCH_SIZE", def.BatchSize),
		Workers:         env.GetEnvInt("SWEEP_WORKERS", def.Workers),
		MaxStaleRetries: env.GetEnvInt("SWEEP_MAX_STALE_RETRIES", def.MaxStaleRetries),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports tunables outside their allowed ranges.
func (c Config) Validate() error {
	v := validator.New()

	return v.Struct(c)
}
