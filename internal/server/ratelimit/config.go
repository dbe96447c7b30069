package ratelimit

import (
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Path pattern; "*" matches one segment, a trailing "/" matches by prefix
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig(getenv func(string) string) *Config {
	env := envReader(getenv)
	enabled := env.boolean("RATE_LIMIT_ENABLED", true)
	if !enabled {
		return &Config{
			Enabled: false,
		}
	}

	return &Config{
		Enabled:         enabled,
		DefaultLimit:    env.integer("RATE_LIMIT_DEFAULT_LIMIT", 600),
		DefaultWindow:   env.duration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: env.duration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Tier 1: Outbound work (crawls and sends)
		{Path: "/campaigns/*/send", Method: "POST", Limit: 20, Window: time.Hour, Burst: 2},
		{Path: "/scans", Method: "POST", Limit: 60, Window: time.Hour, Burst: 10},
		{Path: "/companies/*/revalidate", Method: "POST", Limit: 60, Window: time.Hour, Burst: 5},

		// Tier 2: Write operations
		{Path: "/companies", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/campaigns", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/campaigns/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/emails/queue", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},

		// Tier 3: Reads use the default limit
		// Tier 4: Health check is unlimited, handled in the matcher
	}
}

type envReader func(string) string

func (e envReader) integer(key string, defaultValue int) int {
	if v, err := strconv.Atoi(e(key)); err == nil {
		return v
	}
	return defaultValue
}

func (e envReader) boolean(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(e(key)); err == nil {
		return v
	}
	return defaultValue
}

func (e envReader) duration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(e(key)); err == nil {
		return v
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
