package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"visionproxy/internal/logger"
)

const (
	// EnvVisionAPIKey names the environment variable holding the Google Vision API key.
	EnvVisionAPIKey = "GOOGLE_VISION_API_KEY"

	// DefaultVisionEndpoint is the public REST endpoint for image annotation.
	DefaultVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

	// DefaultMaxBodyBytes is the inbound body ceiling (10 MiB).
	DefaultMaxBodyBytes int64 = 10 << 20

	// DefaultUpstreamTimeout bounds a single call to the Vision API.
	DefaultUpstreamTimeout = 30 * time.Second

	BackendREST = "rest"
	BackendGRPC = "grpc"

	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

type Config struct {
	// Google Vision Configuration
	VisionAPIKey    string
	VisionEndpoint  string
	VisionBackend   string
	UpstreamTimeout time.Duration
	DebugInfo       bool

	// HTTP Server Configuration
	Port           string
	MaxBodyBytes   int64
	MetricsEnabled bool
	Environment    string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		VisionAPIKey:    strings.TrimSpace(getEnv(EnvVisionAPIKey, "")),
		VisionEndpoint:  getEnv("GOOGLE_VISION_ENDPOINT", DefaultVisionEndpoint),
		VisionBackend:   strings.ToLower(getEnv("VISION_BACKEND", BackendREST)),
		UpstreamTimeout: DefaultUpstreamTimeout,
		DebugInfo:       getEnvBool("VISION_DEBUG_INFO", false),
		Port:            getEnv("PORT", "8080"),
		MaxBodyBytes:    DefaultMaxBodyBytes,
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		Environment:     strings.ToLower(getEnv("APP_ENV", getEnv("NODE_ENV", EnvironmentProduction))),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:   getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:       getEnv("LOG_OUTPUT", "stdout"),
	}

	if v := os.Getenv("VISION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config validation failed: VISION_TIMEOUT: %w", err)
		}
		config.UpstreamTimeout = d
	}

	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config validation failed: MAX_BODY_BYTES: %w", err)
		}
		config.MaxBodyBytes = n
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validate checks the values the server cannot run without. A missing API key
// is deliberately not one of them: it is reported per request.
func (c *Config) validate() error {
	switch c.VisionBackend {
	case BackendREST, BackendGRPC:
	default:
		return fmt.Errorf("VISION_BACKEND must be %q or %q, got %q", BackendREST, BackendGRPC, c.VisionBackend)
	}
	if c.VisionEndpoint == "" {
		return fmt.Errorf("GOOGLE_VISION_ENDPOINT must not be empty")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("VISION_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	return nil
}

// HasAPIKey reports whether the Vision API key is configured.
func (c *Config) HasAPIKey() bool {
	return c.VisionAPIKey != ""
}

// IsDevelopment reports whether error responses may carry stack traces.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// Addr returns the listen address derived from Port.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
