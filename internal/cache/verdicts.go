package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lightkeeperhq/guardrails/internal/config"
	"go.uber.org/zap"
)

// CachedVerdict is what gets stored per content hash: the safety verdict
// plus aggregate counts. The content itself is never cached, only its
// SHA-256 digest is used as the key.
type CachedVerdict struct {
	Safe           bool      `json:"safe"`
	Reason         string    `json:"reason,omitempty"`
	ViolationCount int       `json:"violation_count"`
	Categories     []string  `json:"categories,omitempty"`
	CachedAt       time.Time `json:"cached_at"`
}

// Stats tracks verdict cache performance
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// VerdictCache handles Redis-based caching of safety verdicts so that
// repeated identical content (re-asked questions, unchanged transcripts)
// skips a rescan.
type VerdictCache struct {
	client *redis.Client
	config config.CacheConfig
	logger *zap.Logger
	hits   int64
	misses int64
}

// NewVerdictCache creates a new Redis-based verdict cache
func NewVerdictCache(cfg config.CacheConfig, logger *zap.Logger) (*VerdictCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	cache := &VerdictCache{
		client: client,
		config: cfg,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Verdict cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return cache, nil
}

// Key returns the cache key for a piece of content scanned under the
// given mode. Mode is part of the key because the same text produces
// different verdicts under different detector tables (a transcript pass
// runs extra detectors); verdicts must never cross modes.
func (vc *VerdictCache) Key(mode, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s:verdict:%s:%s", vc.config.KeyPrefix, mode, hex.EncodeToString(sum[:16]))
}

// Get looks up a cached verdict for content under the given scan mode.
// A miss (or any Redis failure) returns nil; lookups never fail a
// request.
func (vc *VerdictCache) Get(ctx context.Context, mode, content string) *CachedVerdict {
	key := vc.Key(mode, content)

	data, err := vc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddInt64(&vc.misses, 1)
		return nil
	} else if err != nil {
		vc.logger.Warn("Verdict cache lookup failed", zap.Error(err))
		return nil
	}

	var verdict CachedVerdict
	if err := json.Unmarshal([]byte(data), &verdict); err != nil {
		vc.logger.Warn("Failed to unmarshal cached verdict", zap.Error(err))
		vc.client.Del(ctx, key)
		return nil
	}

	atomic.AddInt64(&vc.hits, 1)
	vc.logger.Debug("Verdict cache hit", zap.String("key", key))
	return &verdict
}

// Store caches a verdict for content under the given scan mode with the
// configured TTL. Failures are logged and swallowed.
func (vc *VerdictCache) Store(ctx context.Context, mode, content string, verdict CachedVerdict) {
	verdict.CachedAt = time.Now()

	data, err := json.Marshal(verdict)
	if err != nil {
		vc.logger.Warn("Failed to marshal verdict for caching", zap.Error(err))
		return
	}

	if err := vc.client.Set(ctx, vc.Key(mode, content), data, vc.config.DefaultTTL).Err(); err != nil {
		vc.logger.Warn("Failed to cache verdict", zap.Error(err))
	}
}

// GetStats returns cache performance statistics
func (vc *VerdictCache) GetStats() Stats {
	stats := Stats{
		Hits:   atomic.LoadInt64(&vc.hits),
		Misses: atomic.LoadInt64(&vc.misses),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Clear removes all cached verdicts with this cache's prefix.
func (vc *VerdictCache) Clear(ctx context.Context) error {
	pattern := vc.config.KeyPrefix + ":verdict:*"

	iter := vc.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := vc.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}

	vc.logger.Info("Verdict cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (vc *VerdictCache) Close() error {
	if vc.client != nil {
		return vc.client.Close()
	}
	return nil
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
