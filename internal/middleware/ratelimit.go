package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/config"
	"github.com/iliyamo/seat-reservation-engine/internal/logger"
)

// tokenBucket refills continuously at ARGV[3] tokens per ARGV[4] ms and
// takes one token if a whole one is left.
// KEYS[1] bucket; ARGV now_ms, capacity, refill_tokens, interval_ms, ttl_s.
// Returns {allowed, whole tokens left, wait_ms}.
var tokenBucket = redis.NewScript(`
local now = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local per_ms = tonumber(ARGV[3]) / tonumber(ARGV[4])

-- tokens are fractional so partial refills carry over between calls
local b = redis.call('HMGET', KEYS[1], 'tk', 'ts')
local tk = tonumber(b[1]) or cap
local ts = tonumber(b[2]) or now
tk = math.min(cap, tk + math.max(0, now - ts) * per_ms)

local ok, wait = 0, 0
if tk >= 1 then
  ok = 1
  tk = tk - 1
else
  wait = math.ceil((1 - tk) / per_ms)
end

redis.call('HSET', KEYS[1], 'tk', tostring(tk), 'ts', now)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
return { ok, math.floor(tk), wait }
`)

// NewTokenBucket limits requests per key with a Redis token bucket. It is
// a pass-through when disabled or without Redis, and fails open when Redis
// errors.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	log = logger.OrNop(log).Named("ratelimit")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			// The script reads and writes the bucket in one round trip, so
			// concurrent requests on the same key cannot both take the last
			// token. The clock is the caller's.
			res, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			// Fail open: a Redis outage must not take the API down.
			if err != nil || len(res) != 3 {
				log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] != 1 {
				secs := int(math.Ceil(float64(res[2]) / 1000))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// rateKeyParts lists the request attributes each key strategy combines.
// Unknown strategies use all three, the narrowest bucket.
var rateKeyParts = map[string][]string{
	"ip":         {"ip"},
	"user":       {"user"},
	"route":      {"route"},
	"ip_user":    {"ip", "user"},
	"ip_route":   {"ip", "route"},
	"user_route": {"user", "route"},
}

// rateKey builds prefix:attr:value[:attr:value...]. Attribute names stay in
// the key so "ip" and "user" buckets never collide on equal values.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts, ok := rateKeyParts[strings.ToLower(cfg.KeyStrategy)]
	if !ok {
		parts = []string{"ip", "user", "route"}
	}
	key := []string{cfg.Prefix}
	for _, p := range parts {
		var v string
		switch p {
		case "ip":
			if v = c.RealIP(); v == "" {
				v = "unknown"
			}
		case "user":
			v = identityKey(c)
		case "route":
			// Registered path, not URL: /pools/1 and /pools/2 share a bucket.
			v = c.Request().Method + " " + c.Path()
		}
		key = append(key, p, v)
	}
	return strings.Join(key, ":")
}
