package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment at startup.
type Config struct {
	Addr           string        `env:"LOOPIN_ADDR" envDefault:":8080"`
	RulesEngineURL string        `env:"LOOPIN_RULES_URL" envDefault:"http://localhost:8090"`
	RulesTimeout   time.Duration `env:"LOOPIN_RULES_TIMEOUT" envDefault:"5s"`
	RetryBaseDelay time.Duration `env:"LOOPIN_RETRY_BASE_DELAY" envDefault:"1s"`
	DatabasePath   string        `env:"LOOPIN_DB_PATH" envDefault:"loopin.db"`
	PowerupTTL     time.Duration `env:"LOOPIN_POWERUP_TTL" envDefault:"60s"`
	SweepInterval  time.Duration `env:"LOOPIN_ABILITY_SWEEP" envDefault:"1s"`
}

// LoadConfig parses configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
