// Package config loads SDK configuration from file, environment and
// defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the SDK needs to reach the platform.
type Config struct {
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	RealtimeURL    string        `mapstructure:"REALTIME_URL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ExpiryMargin   time.Duration `mapstructure:"EXPIRY_MARGIN"`

	// RedisAddr, when set, switches the session store from in-memory to
	// the persisted Redis store.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// Load reads configuration from restokit.yaml (working directory or
// $HOME/.restokit), environment variables, and defaults, in that order of
// increasing precedence for env over file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("restokit")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.restokit")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("API_BASE_URL", "http://localhost:3000/api")
	v.SetDefault("REALTIME_URL", "ws://localhost:3000/realtime")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("EXPIRY_MARGIN", "30s")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
