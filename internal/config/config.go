package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported completion providers.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Config holds the service settings. Values come from built-in defaults, then
// the optional YAML file named by DECKGEN_CONFIG, then environment variables.
type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Model provider: "claude" or "gemini"
	LLMProvider      string `yaml:"llm_provider"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicModel   string `yaml:"anthropic_model"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	GeminiAPIKey     string `yaml:"gemini_api_key"`
	GeminiModel      string `yaml:"gemini_model"`
	GeminiBaseURL    string `yaml:"gemini_base_url"`

	// Root image search; images are left unresolved without a key
	UnsplashAccessKey   string        `yaml:"unsplash_access_key"`
	UnsplashBaseURL     string        `yaml:"unsplash_base_url"`
	MaxConcurrentImages int           `yaml:"max_concurrent_images"`
	ImageTimeout        time.Duration `yaml:"image_timeout"`

	// Storage
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Session state
	SessionTTL time.Duration `yaml:"session_ttl"`

	// Uploads
	MaxUploadBytes       int64 `yaml:"max_upload_bytes"`
	ReferenceTokens      int   `yaml:"reference_tokens"`
	PDFFallbackPdftotext bool  `yaml:"pdf_fallback_pdftotext"`

	// Latency stats window
	StatsWindow time.Duration `yaml:"stats_window"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Port:                 "8090",
		LLMProvider:          ProviderClaude,
		AnthropicModel:       "claude-sonnet-4-5-20250929",
		AnthropicBaseURL:     "https://api.anthropic.com",
		GeminiModel:          "gemini-2.5-flash",
		UnsplashBaseURL:      "https://api.unsplash.com",
		MaxConcurrentImages:  4,
		ImageTimeout:         15 * time.Second,
		DBDriver:             "sqlite",
		DBDSN:                "data/deckgen.db",
		WorkerCount:          4,
		MaxQueueSize:         100,
		SessionTTL:           1 * time.Hour,
		MaxUploadBytes:       20971520, // 20MB
		ReferenceTokens:      4000,
		PDFFallbackPdftotext: true,
		StatsWindow:          15 * time.Minute,
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

// Load builds the configuration. It only fails when DECKGEN_CONFIG names a
// file that cannot be read or parsed.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DECKGEN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("DECKGEN_API_KEY", cfg.APIKey)

	cfg.LLMProvider = strings.ToLower(envOr("DECKGEN_LLM_PROVIDER", cfg.LLMProvider))
	cfg.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = envOr("ANTHROPIC_MODEL", cfg.AnthropicModel)
	cfg.AnthropicBaseURL = envOr("ANTHROPIC_BASE_URL", cfg.AnthropicBaseURL)
	cfg.GeminiAPIKey = envOr("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = envOr("GEMINI_MODEL", cfg.GeminiModel)
	cfg.GeminiBaseURL = envOr("GEMINI_BASE_URL", cfg.GeminiBaseURL)

	cfg.UnsplashAccessKey = envOr("UNSPLASH_ACCESS_KEY", cfg.UnsplashAccessKey)
	cfg.UnsplashBaseURL = envOr("UNSPLASH_BASE_URL", cfg.UnsplashBaseURL)
	cfg.MaxConcurrentImages = envInt("MAX_CONCURRENT_IMAGES", cfg.MaxConcurrentImages)
	cfg.ImageTimeout = envDuration("IMAGE_TIMEOUT", cfg.ImageTimeout)

	cfg.DBDriver = envOr("DECKGEN_DB_DRIVER", cfg.DBDriver)
	cfg.DBDSN = envOr("DECKGEN_DB_DSN", cfg.DBDSN)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.SessionTTL = envDuration("SESSION_TTL", cfg.SessionTTL)

	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.ReferenceTokens = envInt("REFERENCE_TOKENS", cfg.ReferenceTokens)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.StatsWindow = envDuration("STATS_WINDOW", cfg.StatsWindow)

	cfg.LogLevel = envOr("DECKGEN_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("DECKGEN_LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = envOr("DECKGEN_LOG_FILE", cfg.LogFile)

	cfg.clamp()
	return cfg, nil
}

// clamp replaces non-positive limits with their defaults.
func (c *Config) clamp() {
	def := Defaults()
	if c.WorkerCount <= 0 {
		c.WorkerCount = def.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.MaxConcurrentImages <= 0 {
		c.MaxConcurrentImages = def.MaxConcurrentImages
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = def.ImageTimeout
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = def.SessionTTL
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = def.MaxUploadBytes
	}
	if c.ReferenceTokens <= 0 {
		c.ReferenceTokens = def.ReferenceTokens
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = def.StatsWindow
	}
}

// Validate checks the keys required to serve requests.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DECKGEN_API_KEY is required")
	}
	switch c.LLMProvider {
	case ProviderClaude:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider claude")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider gemini")
		}
	default:
		return fmt.Errorf("unknown llm provider %q (want claude or gemini)", c.LLMProvider)
	}
	switch c.DBDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("unknown db driver %q (want sqlite or pgx)", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DECKGEN_DB_DSN is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
