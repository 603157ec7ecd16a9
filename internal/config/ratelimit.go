package config

import "time"

// RateLimitConfig configures the Redis token bucket in front of the auth
// form posts.
type RateLimitConfig struct {
	Enabled        bool          `env:"ENABLED,default=true"`
	Capacity       int           `env:"CAPACITY,default=10"`
	RefillTokens   int           `env:"REFILL_TOKENS,default=1"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL,default=6s"`
	TTL            time.Duration `env:"TTL,default=10m"`
	KeyStrategy    string        `env:"KEY_STRATEGY,default=ip_route"`
	Prefix         string        `env:"PREFIX,default=rl"`
	Debug          bool          `env:"DEBUG,default=false"`
}

func (c RateLimitConfig) normalize() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	minTTL := 5 * c.RefillInterval
	if c.TTL < minTTL {
		c.TTL = minTTL
	}
	if c.Prefix == "" {
		c.Prefix = "rl"
	}
	return c
}
