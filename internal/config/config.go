// Package config loads process configuration from the environment.
package config

import "github.com/caarlos0/env/v11"

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// AppConfig is the full process configuration.
type AppConfig struct {
	Server ServerConfig
	Log    LogConfig
}

// Load parses the full configuration from the environment.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg.Log); err != nil {
		return AppConfig{}, err
	}
	if err := env.Parse(&cfg.Server); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
