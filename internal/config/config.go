package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	MaxRequestBodySize int64

	// Atlas engine
	AtlasThreshold int
	CellSize       int
	AtlasQuality   int
	MaxAtlasBytes  int64

	// Model endpoint
	ModelName      string
	GeminiAPIKey   string
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Response cache
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration

	// Optional atlas persistence
	AzureAccountName string
	AzureAccountKey  string
	AzureContainer   string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AtlasStorageEnabled reports whether an Azure account is configured for
// persisting generated atlases
func (c *Config) AtlasStorageEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 32*1024*1024), // 32MB, inline images included

		AtlasThreshold: int(parseIntOrDefault("ATLAS_THRESHOLD", 3)),
		CellSize:       int(parseIntOrDefault("ATLAS_CELL_SIZE", 512)),
		AtlasQuality:   int(parseIntOrDefault("ATLAS_QUALITY", 85)),
		MaxAtlasBytes:  parseIntOrDefault("MAX_ATLAS_BYTES", 4*1024*1024), // 4MB

		ModelName:      getEnvOrDefault("MODEL_NAME", "gemini-2.0-flash"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		MaxRetries:     int(parseIntOrDefault("MODEL_MAX_RETRIES", 3)),
		RetryBaseDelay: parseDurationOrDefault("MODEL_RETRY_BASE_DELAY", 1*time.Second),

		CacheTTL:           parseDurationOrDefault("CACHE_TTL", 1*time.Hour),
		CacheSweepInterval: parseDurationOrDefault("CACHE_SWEEP_INTERVAL", 5*time.Minute),

		AzureAccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:  os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:   getEnvOrDefault("AZURE_ATLAS_CONTAINER", "atlases"),
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.RequestTimeout <= 0 || cfg.ImageFetchTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s)",
			cfg.RequestTimeout, cfg.ImageFetchTimeout)
	}
	if cfg.AtlasThreshold < 1 {
		return nil, fmt.Errorf("ATLAS_THRESHOLD must be >= 1 (got %d)", cfg.AtlasThreshold)
	}
	if cfg.CellSize < 64 {
		return nil, fmt.Errorf("ATLAS_CELL_SIZE must be >= 64 (got %d)", cfg.CellSize)
	}
	if cfg.AtlasQuality < 1 || cfg.AtlasQuality > 100 {
		return nil, fmt.Errorf("ATLAS_QUALITY must be in [1,100] (got %d)", cfg.AtlasQuality)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("MODEL_MAX_RETRIES must be >= 1 (got %d)", cfg.MaxRetries)
	}
	if cfg.CacheTTL <= 0 || cfg.CacheSweepInterval <= 0 {
		return nil, fmt.Errorf("cache TTL and sweep interval must be > 0 (got ttl=%s, sweep=%s)",
			cfg.CacheTTL, cfg.CacheSweepInterval)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
