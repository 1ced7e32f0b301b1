package config

import "time"

// RateLimitConfig drives the Redis token bucket in front of mutating
// customer routes.
type RateLimitConfig struct {
	Enabled bool
	// Capacity is the burst size; a new key starts with a full bucket.
	Capacity int
	// RefillTokens are added every RefillInterval, spread continuously
	// rather than in steps.
	RefillTokens   int
	RefillInterval time.Duration
	// TTL drops idle buckets from Redis.
	TTL         time.Duration
	KeyStrategy string // ip, user, route, ip_user, ip_route, user_route, ip_user_route
	Prefix      string
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.
func LoadRateLimitConfig() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 30),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	rl.Capacity = max(rl.Capacity, 1)
	rl.RefillTokens = max(rl.RefillTokens, 1)
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	// A bucket must outlive a few refills or it resets to full.
	rl.TTL = max(rl.TTL, 5*rl.RefillInterval)
	return rl
}
