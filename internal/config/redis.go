package config

// Redis backs the session store and the rate limiter. Sessions cannot work
// without it, so callers treat a nil client as fatal; the limiter alone
// degrades to a no-op.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is read with the REDIS_ prefix.
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand, used when host/port are not both set
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number
//	REDIS_TLS – enable TLS
type RedisConfig struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT"`
	Addr     string `env:"ADDR,default=localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0"`
	TLS      bool   `env:"TLS,default=false"`
}

// Address resolves the host:port to dial.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	if c.Addr == "" {
		return "localhost:6379"
	}
	return c.Addr
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout. The returned client is nil if the server cannot be reached.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Address(),
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
