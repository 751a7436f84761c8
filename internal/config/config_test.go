package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.APICallDelay != 15*time.Second {
		t.Errorf("APICallDelay = %s, want 15s", cfg.APICallDelay)
	}
	if cfg.URLValidationTimeout != 3*time.Second {
		t.Errorf("URLValidationTimeout = %s, want 3s", cfg.URLValidationTimeout)
	}
	if cfg.MinConfidenceThreshold != 0.5 {
		t.Errorf("MinConfidenceThreshold = %g, want 0.5", cfg.MinConfidenceThreshold)
	}
	if cfg.HighVarianceThreshold != 1.5 {
		t.Errorf("HighVarianceThreshold = %g, want 1.5", cfg.HighVarianceThreshold)
	}
	if cfg.MaxImagesPerProduct != 3 {
		t.Errorf("MaxImagesPerProduct = %d, want 3", cfg.MaxImagesPerProduct)
	}
	if cfg.PrimaryModel() != "gemini-2.5-flash" {
		t.Errorf("PrimaryModel() = %q, want gemini-2.5-flash", cfg.PrimaryModel())
	}
	if len(cfg.FallbackModels) != 3 {
		t.Errorf("FallbackModels = %v, want 3 entries", cfg.FallbackModels)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("API_CALL_DELAY", "2s")
	t.Setenv("MAX_IMAGES", "5")
	t.Setenv("MIN_CONFIDENCE", "0.7")
	t.Setenv("GEMINI_MODEL", "gemini-2.0-pro")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.APICallDelay != 2*time.Second {
		t.Errorf("APICallDelay = %s, want 2s", cfg.APICallDelay)
	}
	if cfg.MaxImagesPerProduct != 5 {
		t.Errorf("MaxImagesPerProduct = %d, want 5", cfg.MaxImagesPerProduct)
	}
	if cfg.MinConfidenceThreshold != 0.7 {
		t.Errorf("MinConfidenceThreshold = %g, want 0.7", cfg.MinConfidenceThreshold)
	}

	// Model override prepends, keeping the default chain as fallbacks.
	if cfg.PrimaryModel() != "gemini-2.0-pro" {
		t.Errorf("PrimaryModel() = %q, want gemini-2.0-pro", cfg.PrimaryModel())
	}
	if len(cfg.FallbackModels) != 4 {
		t.Errorf("FallbackModels = %v, want override plus 3 defaults", cfg.FallbackModels)
	}
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "PORT", "not-a-port"},
		{"port out of range", "PORT", "70000"},
		{"zero max images", "MAX_IMAGES", "0"},
		{"confidence above one", "MIN_CONFIDENCE", "1.5"},
		{"negative variance threshold", "HIGH_VARIANCE", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("LoadFromEnv() with %s=%q expected error, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	cfg := &Config{Host: " 127.0.0.1 ", Port: " 8080 "}
	if got := cfg.ServerAddress(); got != "127.0.0.1:8080" {
		t.Errorf("ServerAddress() = %q, want 127.0.0.1:8080", got)
	}
}

func TestParseListOrDefault(t *testing.T) {
	t.Setenv("GEMINI_FALLBACK_MODELS", "model-a, model-b ,,")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if len(cfg.FallbackModels) != 2 || cfg.FallbackModels[0] != "model-a" || cfg.FallbackModels[1] != "model-b" {
		t.Errorf("FallbackModels = %v, want [model-a model-b]", cfg.FallbackModels)
	}
}
