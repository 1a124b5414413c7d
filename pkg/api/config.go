package api

import "time"

const (
	defaultTimeout         = 5 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

type Config struct {
	BaseURL string
	Service string
	Timeout time.Duration

	// BreakerFailures consecutive transport failures open the circuit for
	// BreakerCooldown; calls fail fast while it is open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = defaultBreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	if c.Service == "" {
		c.Service = "hoots-client"
	}
	return c
}
