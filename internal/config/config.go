package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default Gemini models, primary first. Later entries are tried in order
// when the earlier ones are rate limited.
var defaultFallbackModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-3-flash-preview",
}

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64

	// Pacing between vision calls and between products
	APICallDelay time.Duration

	// Per-stage timeouts
	URLValidationTimeout time.Duration
	ImageFetchTimeout    time.Duration
	VisionTimeout        time.Duration

	// Quality thresholds
	MinConfidenceThreshold float64
	HighVarianceThreshold  float64

	// Limits
	MaxImagesPerProduct      int
	MaxConcurrentValidations int

	// Model configuration
	GeminiAPIKey   string
	FallbackModels []string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// PrimaryModel returns the first model in the fallback list.
func (c *Config) PrimaryModel() string {
	if len(c.FallbackModels) == 0 {
		return ""
	}
	return c.FallbackModels[0]
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:                     getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                     getEnvOrDefault("PORT", "8080"),
		RequestTimeout:           parseDurationOrDefault("REQUEST_TIMEOUT", 120*time.Second),
		MaxRequestBodySize:       parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 1024*1024), // 1MB
		APICallDelay:             parseDurationOrDefault("API_CALL_DELAY", 15*time.Second),
		URLValidationTimeout:     parseDurationOrDefault("URL_VALIDATION_TIMEOUT", 3*time.Second),
		ImageFetchTimeout:        parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 30*time.Second),
		VisionTimeout:            parseDurationOrDefault("VISION_TIMEOUT", 30*time.Second),
		MinConfidenceThreshold:   parseFloatOrDefault("MIN_CONFIDENCE", 0.5),
		HighVarianceThreshold:    parseFloatOrDefault("HIGH_VARIANCE", 1.5),
		MaxImagesPerProduct:      int(parseIntOrDefault("MAX_IMAGES", 3)),
		MaxConcurrentValidations: int(parseIntOrDefault("MAX_CONCURRENT_VALIDATIONS", 5)),
		GeminiAPIKey:             os.Getenv("GEMINI_API_KEY"),
		FallbackModels:           parseListOrDefault("GEMINI_FALLBACK_MODELS", defaultFallbackModels),
	}

	// Primary model override keeps the rest of the fallback chain intact
	if primary := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); primary != "" && primary != cfg.FallbackModels[0] {
		cfg.FallbackModels = append([]string{primary}, cfg.FallbackModels...)
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.RequestTimeout <= 0 || cfg.URLValidationTimeout <= 0 || cfg.ImageFetchTimeout <= 0 || cfg.VisionTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got request=%s, validation=%s, fetch=%s, vision=%s)",
			cfg.RequestTimeout, cfg.URLValidationTimeout, cfg.ImageFetchTimeout, cfg.VisionTimeout)
	}
	if cfg.MaxImagesPerProduct < 1 {
		return nil, fmt.Errorf("MAX_IMAGES must be >= 1 (got %d)", cfg.MaxImagesPerProduct)
	}
	if cfg.MinConfidenceThreshold < 0 || cfg.MinConfidenceThreshold > 1 {
		return nil, fmt.Errorf("MIN_CONFIDENCE must be in [0,1] (got %g)", cfg.MinConfidenceThreshold)
	}
	if cfg.HighVarianceThreshold <= 0 {
		return nil, fmt.Errorf("HIGH_VARIANCE must be > 0 (got %g)", cfg.HighVarianceThreshold)
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

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
