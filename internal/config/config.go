package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	RedirectConfig
	IdentityConfig
	PollConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
}

// New loads an optional .env file and then parses the process environment.
func New() (Config, error) {
	_ = godotenv.Load()

	var vars EnvVars
	if err := env.Parse(&vars); err != nil {
		return nil, fmt.Errorf("[config.New] parsing environment: %w", err)
	}
	return mainConfig{EnvVars: vars}, nil
}
