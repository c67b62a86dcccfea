package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the VoiceBack service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	ElevenLabsModelID string

	// DefaultVoiceID is the preset voice offered when cloning is unavailable
	// for the account tier.
	DefaultVoiceID string

	DatabaseURL      string
	LogCollection    string
	CatalogCachePath string

	HistoryDisplayLimit int
	ProviderTimeout     time.Duration

	// UserID/UserEmail identify the current user when no identity backend is
	// attached. Empty UserID means anonymous.
	UserID    string
	UserEmail string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "voiceback"),
		AllowAnyOrigin:    false,
		ElevenLabsAPIKey:  envTrimmed("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		ElevenLabsModelID: envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		// Sarah, the premade voice the product shipped with as its fallback.
		DefaultVoiceID:      envOrDefault("DEFAULT_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),
		DatabaseURL:         envTrimmed("DATABASE_URL"),
		LogCollection:       envOrDefault("VOICE_LOG_COLLECTION", "voice_logs"),
		CatalogCachePath:    envTrimmed("CATALOG_CACHE_PATH"),
		HistoryDisplayLimit: 50,
		ProviderTimeout:     45 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		UserID:              envTrimmed("VOICEBACK_USER_ID"),
		UserEmail:           envTrimmed("VOICEBACK_USER_EMAIL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryDisplayLimit, err = intFromEnv("HISTORY_DISPLAY_LIMIT", cfg.HistoryDisplayLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ProviderTimeout < time.Second {
		return Config{}, fmt.Errorf("PROVIDER_TIMEOUT must be at least 1s")
	}
	if cfg.HistoryDisplayLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_DISPLAY_LIMIT must be positive")
	}
	if strings.TrimSpace(cfg.LogCollection) == "" {
		return Config{}, fmt.Errorf("VOICE_LOG_COLLECTION must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
