// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetRequestTimeout() time.Duration
}

// SchedulerConfig provides settings for the asynq broker and the Redis connection.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DirectoryConfig selects and configures the patient/doctor/hospital/specialty directory adapter.
type DirectoryConfig interface {
	GetDirectoryMode() string
	GetDirectoryBaseURL() string
	GetDirectoryAPIKey() string
	GetDirectoryTimeout() time.Duration
}

// RetryConfig provides the directory lookup backoff parameters.
type RetryConfig interface {
	GetLookupMaxAttempts() int
	GetLookupBaseDelay() time.Duration
	GetLookupMultiplier() float64
	GetLookupMaxDelay() time.Duration
}

// BookingConfig provides slot grid and time zone settings for the booking core.
type BookingConfig interface {
	GetBookingLocation() *time.Location
	GetSlotDayStart() string
	GetSlotDayEnd() string
	GetSlotStep() time.Duration
	GetDefaultDuration() int
}

// CacheConfig provides TTL settings for cached directory reads.
type CacheConfig interface {
	GetAssociationCacheTTL() time.Duration
}

// OutboxConfig provides dispatcher and cleanup settings for the appointment outbox.
type OutboxConfig interface {
	GetOutboxPollInterval() time.Duration
	GetOutboxBatchSize() int
	GetOutboxMaxAttempts() int
	GetOutboxRetention() time.Duration
	GetOutboxCleanupInterval() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool
	RequestTimeout  time.Duration

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	DirectoryMode    string
	DirectoryBaseURL string
	DirectoryAPIKey  string
	DirectoryTimeout time.Duration

	LookupMaxAttempts int
	LookupBaseDelay   time.Duration
	LookupMultiplier  float64
	LookupMaxDelay    time.Duration

	BookingTimezone string
	bookingLocation *time.Location
	SlotDayStart    string
	SlotDayEnd      string
	SlotStep        time.Duration
	DefaultDuration int

	AssociationCacheTTL time.Duration

	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
	OutboxMaxAttempts     int
	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig
func (c *Config) GetHTTPAddr() string              { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool            { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string         { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool          { return c.CORSAllowCreds }
func (c *Config) GetRequestTimeout() time.Duration { return c.RequestTimeout }

// SchedulerConfig
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// DirectoryConfig
func (c *Config) GetDirectoryMode() string           { return c.DirectoryMode }
func (c *Config) GetDirectoryBaseURL() string        { return c.DirectoryBaseURL }
func (c *Config) GetDirectoryAPIKey() string         { return c.DirectoryAPIKey }
func (c *Config) GetDirectoryTimeout() time.Duration { return c.DirectoryTimeout }

// RetryConfig
func (c *Config) GetLookupMaxAttempts() int         { return c.LookupMaxAttempts }
func (c *Config) GetLookupBaseDelay() time.Duration { return c.LookupBaseDelay }
func (c *Config) GetLookupMultiplier() float64      { return c.LookupMultiplier }
func (c *Config) GetLookupMaxDelay() time.Duration  { return c.LookupMaxDelay }

// BookingConfig
func (c *Config) GetBookingLocation() *time.Location { return c.bookingLocation }
func (c *Config) GetSlotDayStart() string            { return c.SlotDayStart }
func (c *Config) GetSlotDayEnd() string              { return c.SlotDayEnd }
func (c *Config) GetSlotStep() time.Duration         { return c.SlotStep }
func (c *Config) GetDefaultDuration() int            { return c.DefaultDuration }

// CacheConfig
func (c *Config) GetAssociationCacheTTL() time.Duration { return c.AssociationCacheTTL }

// OutboxConfig
func (c *Config) GetOutboxPollInterval() time.Duration    { return c.OutboxPollInterval }
func (c *Config) GetOutboxBatchSize() int                 { return c.OutboxBatchSize }
func (c *Config) GetOutboxMaxAttempts() int               { return c.OutboxMaxAttempts }
func (c *Config) GetOutboxRetention() time.Duration       { return c.OutboxRetention }
func (c *Config) GetOutboxCleanupInterval() time.Duration { return c.OutboxCleanupInterval }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RequestTimeout:  mustDuration(getEnv("REQUEST_TIMEOUT", "30s")),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),

		DirectoryMode:    strings.ToLower(getEnv("DIRECTORY_MODE", "inprocess")),
		DirectoryBaseURL: strings.TrimRight(getEnv("DIRECTORY_BASE_URL", ""), "/"),
		DirectoryAPIKey:  getEnv("DIRECTORY_API_KEY", ""),
		DirectoryTimeout: mustDuration(getEnv("DIRECTORY_TIMEOUT", "5s")),

		LookupMaxAttempts: mustInt(getEnv("LOOKUP_MAX_ATTEMPTS", "8")),
		LookupBaseDelay:   mustDuration(getEnv("LOOKUP_BASE_DELAY", "500ms")),
		LookupMultiplier:  mustFloat(getEnv("LOOKUP_MULTIPLIER", "1.3")),
		LookupMaxDelay:    mustDuration(getEnv("LOOKUP_MAX_DELAY", "2s")),

		BookingTimezone: getEnv("BOOKING_TIMEZONE", "UTC"),
		SlotDayStart:    getEnv("SLOT_DAY_START", "09:00"),
		SlotDayEnd:      getEnv("SLOT_DAY_END", "17:00"),
		SlotStep:        mustDuration(getEnv("SLOT_STEP", "30m")),
		DefaultDuration: mustInt(getEnv("APPOINTMENT_DEFAULT_DURATION", "30")),

		AssociationCacheTTL: mustDuration(getEnv("ASSOCIATION_CACHE_TTL", "5m")),

		OutboxPollInterval:    mustDuration(getEnv("OUTBOX_POLL_INTERVAL", "2s")),
		OutboxBatchSize:       mustInt(getEnv("OUTBOX_BATCH_SIZE", "50")),
		OutboxMaxAttempts:     mustInt(getEnv("OUTBOX_MAX_ATTEMPTS", "10")),
		OutboxRetention:       mustDuration(getEnv("OUTBOX_RETENTION", "168h")),
		OutboxCleanupInterval: mustDuration(getEnv("OUTBOX_CLEANUP_INTERVAL", "1h")),
	}

	loc, err := time.LoadLocation(cfg.BookingTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", cfg.BookingTimezone, err)
	}
	cfg.bookingLocation = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	switch c.DirectoryMode {
	case "inprocess":
	case "http":
		if c.DirectoryBaseURL == "" {
			return fmt.Errorf("DIRECTORY_BASE_URL is required when DIRECTORY_MODE is http")
		}
	default:
		return fmt.Errorf("DIRECTORY_MODE must be inprocess or http, got %q", c.DirectoryMode)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be a positive duration")
	}
	if c.LookupMaxAttempts < 1 || c.LookupBaseDelay <= 0 || c.LookupMultiplier < 1 || c.LookupMaxDelay < c.LookupBaseDelay {
		return fmt.Errorf("LOOKUP_* retry settings are invalid")
	}
	if c.SlotStep <= 0 {
		return fmt.Errorf("SLOT_STEP must be a positive duration")
	}
	if c.DefaultDuration <= 0 {
		return fmt.Errorf("APPOINTMENT_DEFAULT_DURATION must be positive")
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_* settings must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := lookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
