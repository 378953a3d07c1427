package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  5,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		Blacklist:     map[string]bool{"10.0.0.2": true},
		EndpointConfigs: []EndpointConfig{
			{Path: "/interviews", Method: "POST", Limit: 2, Window: time.Hour, Burst: 2},
			{Path: "/reviews/", Method: "PUT", Limit: 3, Window: time.Minute},
		},
	}
}

func TestLimiter_EndpointBurst(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 2; i++ {
		allowed, info := l.Allow("1.2.3.4", "/interviews", "POST")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 2, info.Limit)
	}

	allowed, info := l.Allow("1.2.3.4", "/interviews", "POST")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
	assert.True(t, info.ResetTime.After(time.Now()))
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 2; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/interviews", "POST")
		require.True(t, allowed)
	}
	allowed, _ := l.Allow("5.6.7.8", "/interviews", "POST")
	assert.True(t, allowed)
}

func TestLimiter_PrefixSharesBucket(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("1.2.3.4", fmt.Sprintf("/reviews/%d/draft", i), "PUT")
		require.True(t, allowed)
	}
	allowed, _ := l.Allow("1.2.3.4", "/reviews/other/draft", "PUT")
	assert.False(t, allowed, "prefix-matched endpoints share one bucket per client")
}

func TestLimiter_Lists(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 20; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/interviews", "POST")
		require.True(t, allowed)
	}
	allowed, _ := l.Allow("10.0.0.2", "/health", "GET")
	assert.False(t, allowed)
}

func TestLimiter_HealthUnlimited(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 50; i++ {
		allowed, info := l.Allow("1.2.3.4", "/health", "GET")
		require.True(t, allowed)
		assert.Equal(t, 0, info.Limit)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	allowed, _ := l.Allow("1.2.3.4", "/interviews", "POST")
	assert.True(t, allowed)
}

func TestLimiter_Refill(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Second})
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }

	allowed, _ := l.Allow("c", "/anything", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("c", "/anything", "GET")
	require.False(t, allowed)

	now = now.Add(1100 * time.Millisecond)
	allowed, _ = l.Allow("c", "/anything", "GET")
	assert.True(t, allowed)
}

func TestLimiter_CleanupBuckets(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer l.Stop()

	l.Allow("c", "/a", "GET")
	l.cleanupBuckets(time.Now().Add(time.Minute))
	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	assert.Zero(t, n)
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 50, DefaultWindow: time.Hour})
	defer l.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/x", "GET"); ok {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowedCount)
}

func TestMatchEndpoint(t *testing.T) {
	configs := append(testConfig().EndpointConfigs,
		EndpointConfig{Path: "/interviews/{id}/complete", Method: "POST", Limit: 1, Window: time.Hour},
		EndpointConfig{Path: "/interviews/", Method: "POST", Limit: 50, Window: time.Minute},
		EndpointConfig{Path: "/reviews/submissions/", Method: "PUT", Limit: 4, Window: time.Minute},
	)
	tests := []struct {
		name   string
		path   string
		method string
		want   string
	}{
		{"exact", "/interviews", "POST", "/interviews"},
		{"prefix", "/reviews/abc/submit", "PUT", "/reviews/"},
		{"longest prefix", "/reviews/submissions/abc/draft", "PUT", "/reviews/submissions/"},
		{"wildcard", "/interviews/5f1c/complete", "POST", "/interviews/{id}/complete"},
		{"wildcard beats prefix", "/interviews/5f1c/complete/", "POST", "/interviews/{id}/complete"},
		{"wildcard literal mismatch", "/interviews/5f1c/answers", "POST", "/interviews/"},
		{"method mismatch", "/interviews", "GET", ""},
		{"no match", "/voice/sessions", "POST", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Path)
		})
	}
	health := MatchEndpoint("/health", "GET", configs)
	require.NotNil(t, health)
	assert.Equal(t, 0, health.Limit)
}

func TestParseIPList(t *testing.T) {
	got := ParseIPList(" 1.1.1.1, ,2.2.2.2 ")
	assert.Equal(t, map[string]bool{"1.1.1.1": true, "2.2.2.2": true}, got)
	assert.Empty(t, ParseIPList(""))
}
