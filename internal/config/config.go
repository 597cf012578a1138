// Package config provides configuration management for slipguard.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (SLIPGUARD_ENGINE_PROVIDER, ...)
const EnvPrefix = "SLIPGUARD"

// Config holds all configuration settings for slipguard.
// Configuration precedence: CLI flags > Environment variables > Config file > Defaults
type Config struct {
	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string

	// LogFormat is "console" or "json"
	LogFormat string

	// LogFile is an optional log file path
	LogFile string

	// KeywordsFile is an optional yaml file overriding the bank/name/slip keyword tables
	KeywordsFile string

	// RiskFile is an optional yaml file overriding the text risk categories
	RiskFile string

	Engine   EngineConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	Cache    CacheConfig
	History  HistoryConfig
	Batch    BatchConfig
	Queue    QueueConfig
}

// EngineConfig selects and configures the recognition engine
type EngineConfig struct {
	// Provider is one of paddle, tesseract, ollama, openai, anthropic, google
	Provider string

	// Model is the vision model for LLM providers
	Model string

	// Endpoint is the HTTP endpoint for paddle and ollama (empty = the engine's local default)
	Endpoint string

	// Languages are tesseract language codes (e.g. tha, eng)
	Languages []string

	// APIKey is read from the provider's environment variable, never from the config file
	APIKey string

	// MaxRetries is the maximum number of retry attempts per recognition call
	MaxRetries int

	// Temperature controls randomness for LLM providers (0.0 recommended)
	Temperature float64

	// Timeout bounds a single recognition call
	Timeout time.Duration
}

// PipelineConfig holds the tunable thresholds of the scan pipeline
type PipelineConfig struct {
	MergeThreshold     float64
	EarlyExitQuality   float64
	AccountExitQuality float64
	BankExitQuality    float64
	MaxVariants        int

	BlankBrightness float64
	BlankContrast   float64
	BlankSharpness  float64

	// MaxSide and MinSide bound the longest side of the normalized image
	MaxSide int
	MinSide int

	// ScanTimeout bounds a whole scan (0 = no limit)
	ScanTimeout time.Duration

	// DecodeQR reads the slip QR code alongside recognition
	DecodeQR bool
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr         string
	CORSOrigins  []string
	MaxBodyBytes int64
	PIDFile      string
}

// CacheConfig configures the scan result cache
type CacheConfig struct {
	// RedisURL enables the Redis cache (empty = in-memory)
	RedisURL string

	// TTL is how long a cached result stays valid (0 disables caching)
	TTL time.Duration
}

// HistoryConfig configures scan history persistence
type HistoryConfig struct {
	// DSN is the postgres connection string (empty = history disabled)
	DSN string
}

// QueueConfig configures background scan jobs
type QueueConfig struct {
	// RedisURL enables the job queue (empty = disabled)
	RedisURL string

	Name        string
	Concurrency int
	MaxRetry    int
	Retention   time.Duration
}

// BatchConfig configures directory batch scans
type BatchConfig struct {
	StateFile string
	WatchDir  string
	Interval  time.Duration

	// Notify queues a batch as soon as a new image lands in WatchDir
	Notify bool
}

var validProviders = map[string]bool{
	"paddle":    true,
	"tesseract": true,
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
	"google":    true,
}

// Load reads configuration from multiple sources and returns a Config instance.
// A .env file in the working directory is loaded first when present.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}

	cfg := FromViper(v)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// NewViper returns a viper instance populated from defaults, the config file and the
// environment. Callers may bind CLI flags to it before calling FromViper.
func NewViper(configFile string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".slipguard")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper builds a Config from an already populated viper instance
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		LogLevel:     v.GetString("log-level"),
		LogFormat:    v.GetString("log-format"),
		LogFile:      v.GetString("log-file"),
		KeywordsFile: v.GetString("keywords-file"),
		RiskFile:     v.GetString("risk-file"),
		Engine: EngineConfig{
			Provider:    v.GetString("engine.provider"),
			Model:       v.GetString("engine.model"),
			Endpoint:    v.GetString("engine.endpoint"),
			Languages:   v.GetStringSlice("engine.languages"),
			MaxRetries:  v.GetInt("engine.max-retries"),
			Temperature: v.GetFloat64("engine.temperature"),
			Timeout:     v.GetDuration("engine.timeout"),
		},
		Pipeline: PipelineConfig{
			MergeThreshold:     v.GetFloat64("pipeline.merge-threshold"),
			EarlyExitQuality:   v.GetFloat64("pipeline.early-exit-quality"),
			AccountExitQuality: v.GetFloat64("pipeline.account-exit-quality"),
			BankExitQuality:    v.GetFloat64("pipeline.bank-exit-quality"),
			MaxVariants:        v.GetInt("pipeline.max-variants"),
			BlankBrightness:    v.GetFloat64("pipeline.blank-brightness"),
			BlankContrast:      v.GetFloat64("pipeline.blank-contrast"),
			BlankSharpness:     v.GetFloat64("pipeline.blank-sharpness"),
			MaxSide:            v.GetInt("pipeline.max-side"),
			MinSide:            v.GetInt("pipeline.min-side"),
			ScanTimeout:        v.GetDuration("pipeline.scan-timeout"),
			DecodeQR:           v.GetBool("pipeline.decode-qr"),
		},
		Server: ServerConfig{
			Addr:         v.GetString("server.addr"),
			CORSOrigins:  v.GetStringSlice("server.cors-origins"),
			MaxBodyBytes: v.GetInt64("server.max-body-bytes"),
			PIDFile:      v.GetString("server.pid-file"),
		},
		Cache: CacheConfig{
			RedisURL: v.GetString("cache.redis-url"),
			TTL:      v.GetDuration("cache.ttl"),
		},
		History: HistoryConfig{
			DSN: v.GetString("history.dsn"),
		},
		Batch: BatchConfig{
			StateFile: v.GetString("batch.state-file"),
			WatchDir:  v.GetString("batch.watch-dir"),
			Interval:  v.GetDuration("batch.interval"),
			Notify:    v.GetBool("batch.notify"),
		},
		Queue: QueueConfig{
			RedisURL:    v.GetString("queue.redis-url"),
			Name:        v.GetString("queue.name"),
			Concurrency: v.GetInt("queue.concurrency"),
			MaxRetry:    v.GetInt("queue.max-retry"),
			Retention:   v.GetDuration("queue.retention"),
		},
	}

	cfg.Engine.APIKey = apiKeyForProvider(cfg.Engine.Provider)
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	v.SetDefault("log-file", "")
	v.SetDefault("keywords-file", "")
	v.SetDefault("risk-file", "")

	v.SetDefault("engine.provider", "paddle")
	v.SetDefault("engine.model", "")
	v.SetDefault("engine.endpoint", "")
	v.SetDefault("engine.languages", []string{"tha", "eng"})
	v.SetDefault("engine.max-retries", 2)
	v.SetDefault("engine.temperature", 0.0)
	v.SetDefault("engine.timeout", 2*time.Minute)

	v.SetDefault("pipeline.merge-threshold", 15.0)
	v.SetDefault("pipeline.early-exit-quality", 0.55)
	v.SetDefault("pipeline.account-exit-quality", 0.45)
	v.SetDefault("pipeline.bank-exit-quality", 0.50)
	v.SetDefault("pipeline.max-variants", 3)
	v.SetDefault("pipeline.blank-brightness", 210.0)
	v.SetDefault("pipeline.blank-contrast", 25.0)
	v.SetDefault("pipeline.blank-sharpness", 160.0)
	v.SetDefault("pipeline.max-side", 2400)
	v.SetDefault("pipeline.min-side", 900)
	v.SetDefault("pipeline.scan-timeout", 0*time.Second)
	v.SetDefault("pipeline.decode-qr", true)

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.cors-origins", []string{"*"})
	v.SetDefault("server.max-body-bytes", int64(20<<20))
	v.SetDefault("server.pid-file", "")

	v.SetDefault("cache.redis-url", "")
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("history.dsn", "")

	v.SetDefault("batch.state-file", filepath.Join(home, ".slipguard-state.json"))
	v.SetDefault("batch.watch-dir", "")
	v.SetDefault("batch.interval", 5*time.Minute)
	v.SetDefault("batch.notify", true)

	v.SetDefault("queue.redis-url", "")
	v.SetDefault("queue.name", "slipguard")
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("queue.max-retry", 3)
	v.SetDefault("queue.retention", 24*time.Hour)
}

// Validate checks that the configuration is valid and internally consistent
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log-level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log-format %q, must be console or json", c.LogFormat)
	}

	if err := c.validateEngine(); err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}

	if err := c.Pipeline.validate(); err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative, got %s", c.Cache.TTL)
	}

	if c.Batch.StateFile != "" {
		expanded, err := expandHome(c.Batch.StateFile)
		if err != nil {
			return fmt.Errorf("failed to expand batch.state-file: %w", err)
		}
		c.Batch.StateFile = expanded
	}

	if c.Batch.WatchDir != "" && c.Batch.Interval <= 0 {
		return fmt.Errorf("batch.interval must be positive when batch.watch-dir is set")
	}

	if c.Queue.RedisURL != "" && c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be at least 1, got %d", c.Queue.Concurrency)
	}

	return nil
}

// validateEngine validates the recognition engine configuration
func (c *Config) validateEngine() error {
	c.Engine.Provider = strings.ToLower(c.Engine.Provider)
	if !validProviders[c.Engine.Provider] {
		return fmt.Errorf("invalid engine.provider %q, must be one of: paddle, tesseract, ollama, openai, anthropic, google", c.Engine.Provider)
	}

	switch c.Engine.Provider {
	case "tesseract":
		if len(c.Engine.Languages) == 0 {
			return fmt.Errorf("engine.languages cannot be empty for tesseract")
		}
	case "openai", "anthropic", "google":
		if c.Engine.APIKey == "" {
			return fmt.Errorf("API key not found for provider %s, check environment variables", c.Engine.Provider)
		}
	}

	if c.Engine.Temperature < 0.0 || c.Engine.Temperature > 2.0 {
		return fmt.Errorf("engine.temperature must be between 0.0 and 2.0, got %f", c.Engine.Temperature)
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max-retries must be non-negative, got %d", c.Engine.MaxRetries)
	}

	return nil
}

func (p *PipelineConfig) validate() error {
	for name, q := range map[string]float64{
		"early-exit-quality":   p.EarlyExitQuality,
		"account-exit-quality": p.AccountExitQuality,
		"bank-exit-quality":    p.BankExitQuality,
	} {
		if q < 0 || q > 1 {
			return fmt.Errorf("pipeline.%s must be between 0 and 1, got %f", name, q)
		}
	}

	if p.MergeThreshold <= 0 {
		return fmt.Errorf("pipeline.merge-threshold must be positive, got %f", p.MergeThreshold)
	}

	if p.MaxVariants < 1 {
		return fmt.Errorf("pipeline.max-variants must be at least 1, got %d", p.MaxVariants)
	}

	if p.MinSide <= 0 || p.MaxSide < p.MinSide {
		return fmt.Errorf("pipeline.min-side (%d) and max-side (%d) must satisfy 0 < min <= max", p.MinSide, p.MaxSide)
	}

	return nil
}

// apiKeyForProvider reads the API key of a cloud provider from its conventional environment variable
func apiKeyForProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "google":
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

// String returns a string representation of the configuration (with sensitive data redacted)
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  LogLevel: %s
  LogFormat: %s
  KeywordsFile: %s
  Engine:
    Provider: %s
    Model: %s
    Endpoint: %s
    Languages: %v
    APIKey: %s
    MaxRetries: %d
    Timeout: %s
  Pipeline:
    MergeThreshold: %.1f
    EarlyExitQuality: %.2f
    AccountExitQuality: %.2f
    BankExitQuality: %.2f
    MaxVariants: %d
    DecodeQR: %t
  Server:
    Addr: %s
  Cache:
    Redis: %s
    TTL: %s
  History:
    DSN: %s
  Batch:
    StateFile: %s
    WatchDir: %s
    Notify: %t
  Queue:
    Redis: %s
    Name: %s
    Concurrency: %d`,
		c.LogLevel,
		c.LogFormat,
		c.KeywordsFile,
		c.Engine.Provider,
		c.Engine.Model,
		c.Engine.Endpoint,
		c.Engine.Languages,
		redact(c.Engine.APIKey),
		c.Engine.MaxRetries,
		c.Engine.Timeout,
		c.Pipeline.MergeThreshold,
		c.Pipeline.EarlyExitQuality,
		c.Pipeline.AccountExitQuality,
		c.Pipeline.BankExitQuality,
		c.Pipeline.MaxVariants,
		c.Pipeline.DecodeQR,
		c.Server.Addr,
		redactURL(c.Cache.RedisURL),
		c.Cache.TTL,
		redactURL(c.History.DSN),
		c.Batch.StateFile,
		c.Batch.WatchDir,
		c.Batch.Notify,
		redactURL(c.Queue.RedisURL),
		c.Queue.Name,
		c.Queue.Concurrency,
	)
}

func redact(secret string) string {
	switch {
	case secret == "":
		return "not set"
	case len(secret) > 8:
		return "***" + secret[len(secret)-4:]
	default:
		return "***"
	}
}

// redactURL hides everything after the scheme so credentials in connection strings never reach logs
func redactURL(u string) string {
	if u == "" {
		return "not set"
	}
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i+3] + "***"
	}
	return "***"
}
