package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/storefront/internal/config"
)

// MsgTooManyRequests is shown on the 429 page.
const MsgTooManyRequests = "Too many attempts. Please wait a moment and try again."

// tokenBucket refills `refill` tokens every interval up to capacity and takes
// one per request. State lives in a Redis hash so every web process shares it.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now_ms
end

if interval_ms > 0 and refill > 0 then
  local steps = math.floor(math.max(0, now_ms - last) / interval_ms)
  if steps > 0 then
    tokens = math.min(capacity, tokens + steps * refill)
    last = last + steps * interval_ms
  end
end

local allowed = 0
local wait_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  wait_ms = math.max(0, interval_ms - (now_ms - last))
end

redis.call('HSET', key, 'tokens', tokens, 'last_ms', last)
redis.call('EXPIRE', key, ttl)
return { allowed, tokens, wait_ms }
`)

// RateLimit throttles the routes it wraps with a Redis token bucket. It is a
// pass-through when disabled or when no Redis client is available, and it
// fails open on Redis errors.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, log zerolog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			res, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				log.Warn().Err(err).Str("key", key).Msg("ratelimit: script failed, allowing request")
				return next(c)
			}
			allowed, remaining, waitMs := res[0] == 1, res[1], res[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !allowed {
				secs := int(math.Ceil(float64(waitMs) / 1000))
				h.Set("Retry-After", strconv.Itoa(secs))
				log.Info().Str("key", key).Int("retry_after", secs).Msg("ratelimit: blocked")
				return echo.NewHTTPError(http.StatusTooManyRequests, MsgTooManyRequests)
			}
			return next(c)
		}
	}
}

// rateKey joins the configured parts. Anonymous visitors count as "anon";
// logged in users are keyed by their id.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := "anon"
	if u, ok := CurrentUser(c); ok {
		uid = u.ID
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
