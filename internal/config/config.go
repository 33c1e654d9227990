package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	// SendGridAPIKey is deliberately not required here: a missing or bad key
	// surfaces at the first provider call, not at startup.
	SendGridAPIKey     string `env:"SENDGRID_API_KEY"`
	DatabasePath       string `env:"EMAILDB_PATH,default=.emaildb"`
	SendGridTimeoutSec int    `env:"SENDGRID_TIMEOUT_SEC,default=10"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
