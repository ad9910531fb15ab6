package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Redis       RedisConfig     `toml:"redis"`
	Queue       QueueConfig     `toml:"queue"`
	Semaphore   SemaphoreConfig `toml:"semaphore"`
	Sources     SourcesConfig   `toml:"sources"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Firecrawl   FirecrawlConfig `toml:"firecrawl"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	Offline     OfflineConfig   `toml:"offline"`
	Rewrite     RewriteConfig   `toml:"rewrite"`
	Images      ImagesConfig    `toml:"images"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
	// BaseURL is the externally visible address used when building
	// public media URLs (e.g. behind a reverse proxy).
	BaseURL string `toml:"base_url"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
	Media  MediaConfig  `toml:"media"`
}

// BadgerConfig represents BadgerDB-specific configuration.
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// MediaConfig configures the content-addressed media store.
type MediaConfig struct {
	Path string `toml:"path"` // Directory for stored images
}

// RedisConfig holds the shared key-value store connection used by the
// cross-process semaphore and the image-search cache.
type RedisConfig struct {
	Address  string `toml:"address" validate:"required"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often consumers poll
	Concurrency       int    `toml:"concurrency"`        // In-process workers per stage queue
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - redelivery window
	MaxReceive        int    `toml:"max_receive"`        // Receives before dead-letter routing
	BackoffBase       string `toml:"backoff_base"`       // First retry delay, doubles per attempt
}

// SemaphoreConfig sizes the per-stage DB slot caps. Each worker type
// holds an independent semaphore; totals should stay below the database
// connection capacity.
type SemaphoreConfig struct {
	EnrichSlots    int    `toml:"enrich_slots"`
	RewriteSlots   int    `toml:"rewrite_slots"`
	ImageSlots     int    `toml:"image_slots"`
	AcquireTimeout string `toml:"acquire_timeout"` // e.g. "30s"
	PollInterval   string `toml:"poll_interval"`   // e.g. "250ms"
	HolderTTL      string `toml:"holder_ttl"`      // Safety net for crashed holders
}

// SourcesConfig locates the source definition file.
type SourcesConfig struct {
	Path string `toml:"path"` // sources.yaml
}

// CrawlerConfig controls outbound page fetching for extraction and enrichment.
type CrawlerConfig struct {
	UserAgent      string `toml:"user_agent"`
	RequestTimeout string `toml:"request_timeout"`
	MaxBodySize    int    `toml:"max_body_size"`
	// EnableJavaScript turns on the chromedp fallback for pages that
	// block or fail plain HTTP fetches.
	EnableJavaScript   bool   `toml:"enable_javascript"`
	JavaScriptWaitTime string `toml:"javascript_wait_time"`
}

// FirecrawlConfig configures the managed crawler API engine. An empty
// API key disables the engine.
type FirecrawlConfig struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	PollInterval string `toml:"poll_interval"` // Async job polling cadence
	Timeout      string `toml:"timeout"`
}

// GeminiConfig contains Google Gemini API configuration.
type GeminiConfig struct {
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	ImageModel        string  `toml:"image_model"`         // Low-cost image generation model
	PremiumImageModel string  `toml:"premium_image_model"` // Imagen fallback
	Timeout           string  `toml:"timeout"`
	Temperature       float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration.
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// OfflineConfig configures the local llama-server fallback, which needs
// no network and never fails the provider chain outright.
type OfflineConfig struct {
	Enabled   bool   `toml:"enabled"`
	LlamaDir  string `toml:"llama_dir"`
	ModelDir  string `toml:"model_dir"`
	ChatModel string `toml:"chat_model"`
}

// RewriteConfig controls the LLM rewrite stage.
type RewriteConfig struct {
	PromptVersion string `toml:"prompt_version"`
	// Providers lists the fallback chain in priority order. Entries:
	// "gemini", "claude", "offline".
	Providers []string `toml:"providers"`
}

// ImagesConfig controls image resolution.
type ImagesConfig struct {
	MinBytes        int64    `toml:"min_bytes"`        // OG/candidate floor (default 40KB)
	MinWidth        int      `toml:"min_width"`        // Preferred candidate width
	SerpAPIKey      string   `toml:"serp_api_key"`     // Paid web image search; empty disables
	SerpBaseURL     string   `toml:"serp_base_url"`
	StockAPIKey     string   `toml:"stock_api_key"` // Unsplash-class provider; empty disables
	StockBaseURL    string   `toml:"stock_base_url"`
	CacheTTL        string   `toml:"cache_ttl"`        // Search-result cache TTL (default 720h)
	SpamDomains     []string `toml:"spam_domains"`     // Excluded from search candidates
	GenerateEnabled bool     `toml:"generate_enabled"` // Master switch for AI generation
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings belong in newswire.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Media: MediaConfig{
				Path: "./data/media",
			},
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        4,
			BackoffBase:       "10s",
		},
		Semaphore: SemaphoreConfig{
			EnrichSlots:    4,
			RewriteSlots:   3,
			ImageSlots:     3,
			AcquireTimeout: "30s",
			PollInterval:   "250ms",
			HolderTTL:      "2m",
		},
		Sources: SourcesConfig{
			Path: "./sources.yaml",
		},
		Crawler: CrawlerConfig{
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:     "30s",
			MaxBodySize:        10 * 1024 * 1024, // 10MB
			EnableJavaScript:   true,
			JavaScriptWaitTime: "3s",
		},
		Firecrawl: FirecrawlConfig{
			BaseURL:      "https://api.firecrawl.dev/v1",
			PollInterval: "2s",
			Timeout:      "60s",
		},
		Gemini: GeminiConfig{
			Model:             "gemini-3-flash-preview",
			ImageModel:        "gemini-2.5-flash-image",
			PremiumImageModel: "imagen-3.0-generate-002",
			Timeout:           "60s",
			Temperature:       0.7,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   2048,
			Timeout:     "60s",
			Temperature: 0.7,
		},
		Offline: OfflineConfig{
			Enabled:   false,
			LlamaDir:  "./llama",
			ModelDir:  "./models",
			ChatModel: "qwen2.5-1.5b-instruct-q4_k_m.gguf",
		},
		Rewrite: RewriteConfig{
			PromptVersion: "v3",
			Providers:     []string{"gemini", "claude", "offline"},
		},
		Images: ImagesConfig{
			MinBytes:        40 * 1024,
			MinWidth:        800,
			SerpBaseURL:     "https://google.serper.dev",
			StockBaseURL:    "https://api.unsplash.com",
			CacheTTL:        "720h",
			SpamDomains:     []string{"pinterest.com", "pinimg.com", "lookaside.fbsbx.com", "alamy.com", "gettyimages.com"},
			GenerateEnabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier
// ones; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyFlagOverrides applies command-line flag values on top of the
// loaded configuration. Zero values leave the config untouched.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints on the final configuration.
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for _, name := range []string{
		config.Crawler.RequestTimeout,
		config.Crawler.JavaScriptWaitTime,
		config.Queue.PollInterval,
		config.Queue.VisibilityTimeout,
		config.Queue.BackoffBase,
		config.Semaphore.AcquireTimeout,
		config.Semaphore.PollInterval,
		config.Semaphore.HolderTTL,
		config.Images.CacheTTL,
	} {
		if _, err := time.ParseDuration(name); err != nil {
			return fmt.Errorf("invalid duration %q in configuration: %w", name, err)
		}
	}

	for _, p := range config.Rewrite.Providers {
		switch p {
		case "gemini", "claude", "offline":
		default:
			return fmt.Errorf("unknown rewrite provider %q", p)
		}
	}

	return nil
}

// MustDuration parses a duration string that Validate has already
// checked. It exists to keep call sites free of impossible error paths.
func MustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("unvalidated duration %q: %v", s, err))
	}
	return d
}

// DurationOr parses s, returning fallback when s is empty or invalid.
func DurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NEWSWIRE_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("NEWSWIRE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("NEWSWIRE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if baseURL := os.Getenv("NEWSWIRE_SERVER_BASE_URL"); baseURL != "" {
		config.Server.BaseURL = baseURL
	}

	if path := os.Getenv("NEWSWIRE_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if path := os.Getenv("NEWSWIRE_MEDIA_PATH"); path != "" {
		config.Storage.Media.Path = path
	}

	if addr := os.Getenv("NEWSWIRE_REDIS_ADDRESS"); addr != "" {
		config.Redis.Address = addr
	}
	if pass := os.Getenv("NEWSWIRE_REDIS_PASSWORD"); pass != "" {
		config.Redis.Password = pass
	}
	if db := os.Getenv("NEWSWIRE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			config.Redis.DB = n
		}
	}

	if concurrency := os.Getenv("NEWSWIRE_QUEUE_CONCURRENCY"); concurrency != "" {
		if n, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = n
		}
	}

	// Provider keys. All optional - a missing key degrades to the next
	// fallback provider instead of failing.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("NEWSWIRE_FIRECRAWL_API_KEY"); key != "" {
		config.Firecrawl.APIKey = key
	}
	if key := os.Getenv("NEWSWIRE_SERP_API_KEY"); key != "" {
		config.Images.SerpAPIKey = key
	}
	if key := os.Getenv("NEWSWIRE_STOCK_API_KEY"); key != "" {
		config.Images.StockAPIKey = key
	}

	if level := os.Getenv("NEWSWIRE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("NEWSWIRE_LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}
}
