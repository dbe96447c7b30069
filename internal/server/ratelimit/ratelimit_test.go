package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/scans/abc", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
		assert.False(t, info.ResetTime.Before(time.Now().Add(-time.Second)))
	}

	allowed, info := limiter.Allow("127.0.0.1", "/scans/abc", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Positive(t, info.RetryAfter)
	assert.LessOrEqual(t, info.RetryAfter, 6*time.Second)
}

func TestLimiter_Refill(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled: true,
		EndpointConfigs: []EndpointConfig{
			{Path: "/scans", Method: "POST", Limit: 10, Window: time.Second, Burst: 1},
		},
	})
	defer limiter.Stop()

	allowed, _ := limiter.Allow("127.0.0.1", "/scans", "POST")
	require.True(t, allowed)
	allowed, _ = limiter.Allow("127.0.0.1", "/scans", "POST")
	require.False(t, allowed)

	time.Sleep(150 * time.Millisecond)
	allowed, _ = limiter.Allow("127.0.0.1", "/scans", "POST")
	assert.True(t, allowed, "one token refills every 100ms")
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		Blacklist:     map[string]bool{"10.0.0.2": true},
	})
	defer limiter.Stop()

	for i := 0; i < 50; i++ {
		allowed, _ := limiter.Allow("10.0.0.1", "/scans/abc", "GET")
		require.True(t, allowed)
	}
	allowed, _ := limiter.Allow("10.0.0.2", "/health", "GET")
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(LoadConfig(func(k string) string {
		if k == "RATE_LIMIT_ENABLED" {
			return "false"
		}
		return ""
	}))
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/campaigns/c-1/send", "POST")
		require.True(t, allowed)
		assert.Equal(t, 0, info.Limit)
	}
}

func TestLimiter_EndpointSpecific(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(),
	})
	defer limiter.Stop()

	// Sends share one bucket across campaigns
	allowed, info := limiter.Allow("127.0.0.1", "/campaigns/c-1/send", "POST")
	require.True(t, allowed)
	assert.Equal(t, 20, info.Limit)
	allowed, _ = limiter.Allow("127.0.0.1", "/campaigns/c-2/send", "POST")
	require.True(t, allowed)
	allowed, _ = limiter.Allow("127.0.0.1", "/campaigns/c-3/send", "POST")
	assert.False(t, allowed, "burst of 2 is exhausted")

	// Lifecycle actions fall through to the prefix rule
	allowed, info = limiter.Allow("127.0.0.1", "/campaigns/c-1/pause", "POST")
	assert.True(t, allowed)
	assert.Equal(t, 100, info.Limit)

	// Reads use the default
	allowed, info = limiter.Allow("127.0.0.1", "/scans/s-1", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)

	// Other clients have their own buckets
	allowed, _ = limiter.Allow("127.0.0.2", "/campaigns/c-1/send", "POST")
	assert.True(t, allowed)
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()
	tests := []struct {
		path, method string
		want         string
	}{
		{"/health", "GET", "/health"},
		{"/scans", "POST", "/scans"},
		{"/scans", "GET", ""},
		{"/campaigns/abc/send", "POST", "/campaigns/*/send"},
		{"/campaigns//send", "POST", "/campaigns/"},
		{"/campaigns/abc/activate", "POST", "/campaigns/"},
		{"/campaigns", "POST", "/campaigns"},
		{"/companies/abc/revalidate", "POST", "/companies/*/revalidate"},
		{"/emails/queue", "POST", "/emails/queue"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Path)
		})
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Hour,
	})
	defer limiter.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("127.0.0.1", "/scans/abc", "GET"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowedCount)
}

func TestLimiter_CleanupBuckets(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer limiter.Stop()

	base := time.Now()
	limiter.now = func() time.Time { return base }
	for i := 0; i < 4; i++ {
		limiter.Allow(fmt.Sprintf("10.0.0.%d", i), "/scans/abc", "GET")
	}
	limiter.now = func() time.Time { return base.Add(2 * time.Hour) }
	limiter.Allow("10.0.0.0", "/scans/abc", "GET")

	limiter.cleanupBuckets(base.Add(time.Hour))
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Len(t, limiter.buckets, 1)
}

func TestLimiter_StopTwice(t *testing.T) {
	limiter := NewLimiter(nil)
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestNewLimiter_NilConfig(t *testing.T) {
	limiter := NewLimiter(nil)
	defer limiter.Stop()

	allowed, info := limiter.Allow("127.0.0.1", "/scans/abc", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 600, info.Limit)
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_DEFAULT_LIMIT":  "50",
		"RATE_LIMIT_DEFAULT_WINDOW": "30s",
		"RATE_LIMIT_WHITELIST":      "10.0.0.1, 10.0.0.2,",
	}
	cfg := LoadConfig(func(k string) string { return env[k] })
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 50, cfg.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.DefaultWindow)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, map[string]bool{"10.0.0.1": true, "10.0.0.2": true}, cfg.Whitelist)
	assert.Empty(t, cfg.Blacklist)
}
