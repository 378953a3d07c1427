package ratelimit

import (
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Exact path, "{name}" segment pattern, or prefix ending in "/"
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Tier 1: session creation and scoring (strictest limits)
		{Path: "/interviews", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/voice/sessions", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/interviews/{id}/complete", Method: "POST", Limit: 60, Window: time.Hour, Burst: 10},
		{Path: "/interviews/{id}/feedback/retry", Method: "POST", Limit: 20, Window: time.Hour, Burst: 3},

		// Answers and transcript turns
		{Path: "/interviews/", Method: "POST", Limit: 600, Window: time.Minute, Burst: 60},

		// Tier 2: review writes
		{Path: "/reviews/", Method: "PUT", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/reviews/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},

		// Provider webhook and reads use the default limit; /health is unlimited.
	}
}

// ParseIPList parses a comma-separated list of IP addresses into a set.
func ParseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
