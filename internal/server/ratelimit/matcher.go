package ratelimit

import (
	"net/http"
	"strings"
)

// MatchEndpoint returns the configuration that applies to a request, or nil.
//
// A config path matches exactly, segment by segment with "{name}" wildcards
// ("/interviews/{id}/complete"), or by prefix when it ends in "/". Exact and
// wildcard matches win over prefixes, and the longest prefix wins among prefixes.
// GET /health is never limited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == http.MethodGet {
		return &EndpointConfig{}
	}

	var prefix *EndpointConfig
	for i := range configs {
		ec := &configs[i]
		if ec.Method != method {
			continue
		}
		if ec.Path == path || matchSegments(ec.Path, path) {
			return ec
		}
		if strings.HasSuffix(ec.Path, "/") && strings.HasPrefix(path, ec.Path) {
			if prefix == nil || len(ec.Path) > len(prefix.Path) {
				prefix = ec
			}
		}
	}
	return prefix
}

func matchSegments(pattern, path string) bool {
	if !strings.Contains(pattern, "{") {
		return false
	}
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}
