package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/services"
)

// Cache backends selectable with CACHE_BACKEND.
const (
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
	CacheBackendMemory   = "memory"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database (voice_cache + voice_settings)
	DatabaseURL string

	// Redis (cache backend and pre-warm queue)
	RedisURL string

	// Cache
	CacheBackend       string
	CacheTTL           time.Duration
	CachePurgeInterval time.Duration

	// ElevenLabs (preferred TTS provider)
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ElevenLabsModelID string

	// Cartesia (legacy TTS provider, used when ElevenLabs key is not set)
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string

	SynthesisTimeout time.Duration

	// Pre-warm worker
	PrewarmEnabled     bool
	PrewarmConcurrency int

	// Logging
	LogLevel string
	LogFile  string

	// voicectl
	VoicectlCachePath string
}

// Load reads the environment (and .env if present). Missing TTS keys are not
// an error: voice degrades to text-only.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		CacheBackend:       strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendPostgres)),
		CacheTTL:           getEnvDuration("CACHE_TTL", 720*time.Hour),
		CachePurgeInterval: getEnvDuration("CACHE_PURGE_INTERVAL", time.Hour),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", ""),
		ElevenLabsModelID:  getEnv("ELEVENLABS_MODEL_ID", ""),
		CartesiaKey:        getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:        getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:    getEnv("CARTESIA_VOICE_ID", ""),
		SynthesisTimeout:   services.ClampTimeout(getEnvDuration("SYNTHESIS_TIMEOUT", services.DefaultSynthesisTimeout)),
		PrewarmEnabled:     getEnvBool("PREWARM_ENABLED", false),
		PrewarmConcurrency: getEnvInt("PREWARM_CONCURRENCY", 2),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
		VoicectlCachePath:  getEnv("VOICECTL_CACHE_PATH", defaultVoicectlCachePath()),
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	switch cfg.CacheBackend {
	case CacheBackendPostgres, CacheBackendRedis, CacheBackendMemory:
	default:
		return nil, fmt.Errorf("CACHE_BACKEND must be one of postgres, redis, memory (got %q)", cfg.CacheBackend)
	}

	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive")
	}

	if cfg.PrewarmConcurrency < 1 {
		return nil, fmt.Errorf("PREWARM_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

// ValidateServer checks what the API process needs on top of Load.
func (c *Config) ValidateServer() error {
	if c.CacheBackend == CacheBackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when CACHE_BACKEND=postgres")
	}
	if c.PrewarmEnabled && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when PREWARM_ENABLED=true")
	}
	return nil
}

// VoiceConfigured reports whether any synthesis provider has credentials.
func (c *Config) VoiceConfigured() bool {
	return c.ElevenLabsKey != "" || c.CartesiaKey != ""
}

// Providers returns the synthesis provider settings.
func (c *Config) Providers() services.ProviderConfig {
	return services.ProviderConfig{
		ElevenLabsAPIKey:  c.ElevenLabsKey,
		ElevenLabsVoiceID: c.ElevenLabsVoiceID,
		ElevenLabsModelID: c.ElevenLabsModelID,
		CartesiaAPIKey:    c.CartesiaKey,
		CartesiaAPIURL:    c.CartesiaURL,
		CartesiaVoiceID:   c.CartesiaVoiceID,
		Timeout:           c.SynthesisTimeout,
	}
}

// Logger returns the logger settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.LogLevel, File: c.LogFile}
}

func defaultVoicectlCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "wellvoice", "voice-cache.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
