package ratelimit

import (
	"testing"
	"time"

	"github.com/lightkeeperhq/guardrails/internal/config"
)

func TestLimiter(t *testing.T) {
	t.Run("BurstThenThrottle", func(t *testing.T) {
		l := New(config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			Burst:          3,
		})

		for i := 0; i < 3; i++ {
			if !l.Allow("10.0.0.1") {
				t.Fatalf("Request %d within burst was denied", i+1)
			}
		}
		if l.Allow("10.0.0.1") {
			t.Error("Request beyond burst was allowed")
		}
	})

	t.Run("ClientsAreIndependent", func(t *testing.T) {
		l := New(config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			Burst:          1,
		})

		if !l.Allow("10.0.0.1") {
			t.Fatal("First client denied")
		}
		if l.Allow("10.0.0.1") {
			t.Error("First client not throttled")
		}
		if !l.Allow("10.0.0.2") {
			t.Error("Second client throttled by first client's bucket")
		}
	})

	t.Run("DisabledAllowsEverything", func(t *testing.T) {
		l := New(config.RateLimitConfig{Enabled: false})

		for i := 0; i < 100; i++ {
			if !l.Allow("10.0.0.1") {
				t.Fatal("Disabled limiter denied a request")
			}
		}
	})

	t.Run("CleanupRemovesIdleBuckets", func(t *testing.T) {
		l := New(config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			Burst:          1,
		})

		l.Allow("10.0.0.1")
		time.Sleep(time.Millisecond)
		l.Cleanup(0)

		l.mu.Lock()
		remaining := len(l.clients)
		l.mu.Unlock()
		if remaining != 0 {
			t.Errorf("Expected 0 buckets after cleanup, got %d", remaining)
		}
	})
}
