package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort string

	AIAPIBase string
	AIAPIKey  string
	AIModel   string

	HFToken         string
	HFAPIBase       string
	HFChatModel     string
	HFChatFallback  string
	HFClipModel     string
	HFImageModel    string
	ProviderTimeout time.Duration

	RedisAddr          string
	RateLimitPerMinute int
	EmbedCacheTTL      time.Duration

	JWTSecret string

	BreakerThreshold int
	BreakerCooldown  time.Duration

	LogLevel string
}

// fileConfig mirrors the env keys so a YAML file can supply defaults.
type fileConfig map[string]string

// NewConfig reads the environment, falling back to the YAML file named by
// ARTEMIS_CONFIG and then to built-in defaults.
func NewConfig() *Config {
	file, err := loadFile(os.Getenv("ARTEMIS_CONFIG"))
	if err != nil {
		slog.Warn("Ignoring config file", "error", err)
	}
	return newConfig(lookup(file))
}

func newConfig(get func(key, fallback string) string) *Config {
	return &Config{
		HTTPPort: get("HTTP_PORT", "8080"),

		AIAPIBase: get("AI_API_BASE", ""),
		AIAPIKey:  get("AI_API_KEY", ""),
		AIModel:   get("AI_MODEL", "gpt-4o-mini"),

		HFToken:         get("HF_TOKEN", ""),
		HFAPIBase:       get("HF_API_BASE", "https://api-inference.huggingface.co"),
		HFChatModel:     get("HF_CHAT_MODEL", "mistralai/Mistral-7B-Instruct-v0.3"),
		HFChatFallback:  get("HF_CHAT_MODEL_FALLBACK", "google/gemma-2-2b-it"),
		HFClipModel:     get("HF_CLIP_MODEL", "sentence-transformers/clip-ViT-B-32-multilingual-v1"),
		HFImageModel:    get("HF_IMAGE_MODEL", ""),
		ProviderTimeout: getDuration(get, "PROVIDER_TIMEOUT", 60*time.Second),

		RedisAddr:          get("REDIS_ADDR", ""),
		RateLimitPerMinute: getInt(get, "RATE_LIMIT_PER_MINUTE", 30),
		EmbedCacheTTL:      getDuration(get, "EMBED_CACHE_TTL", 24*time.Hour),

		JWTSecret: get("JWT_SECRET", ""),

		BreakerThreshold: getInt(get, "BREAKER_THRESHOLD", 5),
		BreakerCooldown:  getDuration(get, "BREAKER_COOLDOWN", 30*time.Second),

		LogLevel: get("LOG_LEVEL", "info"),
	}
}

// OpenAIConfigured reports whether both the base URL and key are present.
func (c *Config) OpenAIConfigured() bool {
	return c.AIAPIBase != "" && c.AIAPIKey != ""
}

func (c *Config) HuggingFaceConfigured() bool {
	return c.HFToken != ""
}

func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func loadFile(path string) (fileConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

func lookup(file fileConfig) func(key, fallback string) string {
	return func(key, fallback string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		if value, exists := file[key]; exists {
			return value
		}
		return fallback
	}
}

func getInt(get func(string, string) string, key string, fallback int) int {
	raw := get(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return n
}

func getDuration(get func(string, string) string, key string, fallback time.Duration) time.Duration {
	raw := get(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}
