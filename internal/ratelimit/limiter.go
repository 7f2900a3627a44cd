package ratelimit

import (
	"sync"
	"time"

	"github.com/lightkeeperhq/guardrails/internal/config"
	"golang.org/x/time/rate"
)

// Limiter applies a per-client token bucket to incoming requests.
type Limiter struct {
	config  config.RateLimitConfig
	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a new per-client rate limiter
func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		config:  cfg,
		clients: make(map[string]*client),
	}
}

// Allow checks whether a request from the given client IP is allowed
func (l *Limiter) Allow(clientIP string) bool {
	if !l.config.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[clientIP]
	if !ok {
		perSecond := rate.Limit(float64(l.config.RequestsPerMin) / 60.0)
		c = &client{limiter: rate.NewLimiter(perSecond, l.config.Burst)}
		l.clients[clientIP] = c
	}
	c.lastSeen = time.Now()

	return c.limiter.Allow()
}

// Cleanup removes buckets idle for longer than maxIdle to bound memory.
func (l *Limiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

// StartCleanupRoutine starts a background routine to clean up idle buckets
func (l *Limiter) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			l.Cleanup(time.Hour)
		}
	}()
}
