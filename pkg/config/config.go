// Package config loads the client configuration from a TOML file and
// overlays it with HOOTS_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"hoots/pkg/api"
)

type Config struct {
	ServiceName string `toml:"serviceName" env:"HOOTS_SERVICE_NAME"`
	APIURL      string `toml:"apiURL" env:"HOOTS_API_URL"`
	// RequestTimeout and BreakerCooldown are in seconds.
	RequestTimeout int    `toml:"requestTimeout" env:"HOOTS_REQUEST_TIMEOUT"`
	LogLevel       string `toml:"logLevel" env:"HOOTS_LOG_LEVEL"`
	SessionFile    string `toml:"sessionFile" env:"HOOTS_SESSION_FILE"`
	HistoryFile    string `toml:"historyFile" env:"HOOTS_HISTORY_FILE"`

	KafkaAddr  string `toml:"kafkaAddr" env:"HOOTS_KAFKA_ADDR"`
	KafkaTopic string `toml:"kafkaTopic" env:"HOOTS_KAFKA_TOPIC"`
	KafkaBatch int    `toml:"kafkaBatch" env:"HOOTS_KAFKA_BATCH"`

	BreakerFailures uint32 `toml:"breakerFailures" env:"HOOTS_BREAKER_FAILURES"`
	BreakerCooldown int    `toml:"breakerCooldown" env:"HOOTS_BREAKER_COOLDOWN"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ServiceName:     "hoots-client",
		APIURL:          "http://localhost:3000",
		RequestTimeout:  5,
		LogLevel:        "info",
		BreakerFailures: 5,
		BreakerCooldown: 30,
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsValid() bool {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	if c.RequestTimeout <= 0 || c.BreakerCooldown < 0 || c.KafkaBatch < 0 {
		return false
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return false
	}
	return true
}

// API returns the backend client settings.
func (c *Config) API() api.Config {
	return api.Config{
		BaseURL:         c.APIURL,
		Service:         c.ServiceName,
		Timeout:         time.Duration(c.RequestTimeout) * time.Second,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: time.Duration(c.BreakerCooldown) * time.Second,
	}
}
