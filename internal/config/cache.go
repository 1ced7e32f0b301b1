package config

import (
	"strings"
	"time"
)

// CacheConfig drives the Redis response cache on availability reads.
// The TTL is short: realtime events carry changes, the cache only absorbs
// bursts of identical polls.
type CacheConfig struct {
	Enabled bool
	Methods map[string]bool
	TTL     time.Duration
	// KeyStrategy picks what identifies an entry: route, method_route,
	// method_route_query or route_query. Strategies without the query
	// share one entry across query strings.
	KeyStrategy string
	Prefix      string
	// MaxBodyBytes caps stored bodies; larger responses pass uncached.
	MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 2*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

// parseMethods turns "get, HEAD" into a method set. Only idempotent methods
// belong here.
func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			m[p] = true
		}
	}
	return m
}
