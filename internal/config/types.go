package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Guardrails GuardrailsConfig `yaml:"guardrails" mapstructure:"guardrails"`
	Upstream   UpstreamConfig   `yaml:"upstream" mapstructure:"upstream"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// GuardrailsConfig contains sanitizer and safety-policy configuration.
type GuardrailsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Detectors lists enabled detector categories, or "all".
	Detectors []string `yaml:"detectors" mapstructure:"detectors"`
	// MaxInputLength bounds content size before scanning. Longer input is
	// truncated so adversarial payloads cannot inflate scan cost.
	MaxInputLength int `yaml:"max_input_length" mapstructure:"max_input_length"`
	// MaxRedactionRatio is the fraction of content that may be redacted
	// before the result is considered unsafe to forward.
	MaxRedactionRatio float64 `yaml:"max_redaction_ratio" mapstructure:"max_redaction_ratio"`
}

// UpstreamConfig contains upstream LLM service configuration
type UpstreamConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string            `yaml:"level" mapstructure:"level"`
	Format string            `yaml:"format" mapstructure:"format"` // json or console
	File   LoggingFileConfig `yaml:"file" mapstructure:"file"`
}

// LoggingFileConfig contains file logging configuration
type LoggingFileConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
	MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
	Compress bool   `yaml:"compress" mapstructure:"compress"`
}

// AuditConfig contains the aggregate violation store configuration.
// Only category/severity counts are ever persisted, never raw matches.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ExportDir       string        `yaml:"export_dir" mapstructure:"export_dir"`
}

// CacheConfig contains verdict cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// RateLimitConfig contains per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled        bool           `yaml:"enabled" mapstructure:"enabled"`
	Path           string         `yaml:"path" mapstructure:"path"`
	MaxConnections int            `yaml:"max_connections" mapstructure:"max_connections"`
	AllowedOrigins []string       `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Events         WSEventsConfig `yaml:"events" mapstructure:"events"`
}

// WSEventsConfig controls which event types are broadcast to clients
type WSEventsConfig struct {
	BroadcastRequests   bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
	BroadcastDetections bool `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
	BroadcastSystem     bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Guardrails: GuardrailsConfig{
			Enabled:           true,
			Detectors:         []string{"all"},
			MaxInputLength:    1 << 20, // 1 MiB
			MaxRedactionRatio: 0.50,
		},
		Upstream: UpstreamConfig{
			URL:     "https://api.openai.com",
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LoggingFileConfig{
				Enabled:  false,
				Path:     "logs/guardrails.log",
				MaxSize:  100, // MB
				MaxAge:   30,  // days
				Compress: true,
			},
		},
		Audit: AuditConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ExportDir:       "exports",
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     time.Hour,
			KeyPrefix:      "guardrails",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			Burst:          20,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			MaxConnections: 100,
			AllowedOrigins: []string{"*"},
			Events: WSEventsConfig{
				BroadcastRequests:   true,
				BroadcastDetections: true,
				BroadcastSystem:     true,
			},
		},
	}
}
