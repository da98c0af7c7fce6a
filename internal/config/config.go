// Package config loads server settings from an optional JSON file with
// sane defaults, so a bare binary runs without any file at all.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved server configuration.
type Config struct {
	LogLevel string       `json:"logLevel" mapstructure:"logLevel"`
	Server   ServerConfig `json:"server" mapstructure:"server"`
	Store    StoreConfig  `json:"store" mapstructure:"store"`

	// Games carries per-module tuning tables keyed by slug. Values merge
	// under each create request's own config, which always wins.
	Games map[string]map[string]any `json:"games" mapstructure:"games"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdownTimeout"`
}

// StoreConfig holds the sqlite session store settings.
type StoreConfig struct {
	Path       string        `json:"path" mapstructure:"path"`
	StaleAfter time.Duration `json:"staleAfter" mapstructure:"staleAfter"`
}

// GameDefaults returns the tuning table for one module slug, or nil.
func (c *Config) GameDefaults(slug string) map[string]any {
	if c == nil {
		return nil
	}
	return c.Games[slug]
}

// Load reads configuration from configDir/gamehost.cfg.json. A missing
// file is fine; defaults cover every key.
func Load(configDir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logLevel", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("store.path", "./sessions.db")
	v.SetDefault("store.staleAfter", 24*time.Hour)

	v.SetDefault("games", map[string]map[string]any{})

	v.SetConfigName("gamehost.cfg")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
