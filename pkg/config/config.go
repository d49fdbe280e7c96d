package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the service reads.
const EnvPrefix = "IGANALYZER_"

// Config holds all configuration options for the analyzer service
type Config struct {
	Instagram InstagramConfig `yaml:"instagram" json:"instagram" envPrefix:"INSTAGRAM_"`
	Server    ServerConfig    `yaml:"server" json:"server" envPrefix:"SERVER_"`
	Session   SessionConfig   `yaml:"session" json:"session" envPrefix:"SESSION_"`
	Media     MediaConfig     `yaml:"media" json:"media" envPrefix:"MEDIA_"`
	Jobs      JobsConfig      `yaml:"jobs" json:"jobs" envPrefix:"JOBS_"`
	Retry     RetryConfig     `yaml:"retry" json:"retry" envPrefix:"RETRY_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging" envPrefix:"LOG_"`
}

// InstagramConfig holds upstream credentials and request settings
type InstagramConfig struct {
	SessionID      string        `yaml:"session_id" json:"session_id" env:"SESSION_ID"`
	CSRFToken      string        `yaml:"csrf_token" json:"csrf_token" env:"CSRF_TOKEN"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent" env:"USER_AGENT"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// SessionConfig controls session lifetime and snapshot persistence
type SessionConfig struct {
	// Backend is "file" (one JSON document per session) or "sqlite".
	Backend       string        `yaml:"backend" json:"backend" env:"BACKEND"`
	Directory     string        `yaml:"directory" json:"directory" env:"DIR"`
	SQLitePath    string        `yaml:"sqlite_path" json:"sqlite_path" env:"SQLITE_PATH"`
	TTL           time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// MediaConfig controls where downloaded media lives and how long it is kept
type MediaConfig struct {
	Directory        string        `yaml:"directory" json:"directory" env:"DIR"`
	Retention        time.Duration `yaml:"retention" json:"retention" env:"RETENTION"`
	SweepInterval    time.Duration `yaml:"sweep_interval" json:"sweep_interval" env:"SWEEP_INTERVAL"`
	MaxDownloadBytes int64         `yaml:"max_download_bytes" json:"max_download_bytes" env:"MAX_DOWNLOAD_BYTES"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" json:"download_timeout" env:"DOWNLOAD_TIMEOUT"`
}

// JobsConfig sizes the background worker pool and the per-job workload
type JobsConfig struct {
	Workers    int           `yaml:"workers" json:"workers" env:"WORKERS"`
	QueueSize  int           `yaml:"queue_size" json:"queue_size" env:"QUEUE_SIZE"`
	PostLimit  int           `yaml:"post_limit" json:"post_limit" env:"POST_LIMIT"`
	StoryLimit int           `yaml:"story_limit" json:"story_limit" env:"STORY_LIMIT"`
	PaceMin    time.Duration `yaml:"pace_min" json:"pace_min" env:"PACE_MIN"`
	PaceMax    time.Duration `yaml:"pace_max" json:"pace_max" env:"PACE_MAX"`
}

// RetryConfig controls download retries
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay" env:"BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay" env:"MAX_DELAY"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier" env:"MULTIPLIER"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" json:"json" env:"JSON"`
	File  string `yaml:"file" json:"file" env:"FILE"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Backend:       "file",
			Directory:     "sessions",
			SQLitePath:    "sessions/sessions.db",
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Media: MediaConfig{
			Directory:        "static/media",
			Retention:        24 * time.Hour,
			SweepInterval:    6 * time.Hour,
			MaxDownloadBytes: 50 * 1024 * 1024,
			DownloadTimeout:  30 * time.Second,
		},
		Jobs: JobsConfig{
			Workers:    4,
			QueueSize:  32,
			PostLimit:  12,
			StoryLimit: 3,
			PaceMin:    1500 * time.Millisecond,
			PaceMax:    3 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv overrides fields from IGANALYZER_* environment variables.
// Variables that are unset leave the current value in place.
func (c *Config) LoadFromEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".iganalyzer.yaml",
		".iganalyzer.yml",
		filepath.Join(home, ".config", "iganalyzer", "config.yaml"),
		filepath.Join(home, ".iganalyzer.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}

	switch c.Session.Backend {
	case "file":
		if c.Session.Directory == "" {
			errs = append(errs, errors.New("session directory is required for the file backend"))
		}
	case "sqlite":
		if c.Session.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session sweep interval must be positive"))
	}

	if c.Media.Directory == "" {
		errs = append(errs, errors.New("media directory is required"))
	}
	if c.Media.Retention <= 0 || c.Media.SweepInterval <= 0 {
		errs = append(errs, errors.New("media retention and sweep interval must be positive"))
	}
	if c.Media.MaxDownloadBytes <= 0 {
		errs = append(errs, errors.New("max download size must be positive"))
	}

	if c.Jobs.Workers <= 0 {
		errs = append(errs, errors.New("job workers must be positive"))
	}
	if c.Jobs.QueueSize < 0 {
		errs = append(errs, errors.New("job queue size cannot be negative"))
	}
	if c.Jobs.PostLimit <= 0 {
		errs = append(errs, errors.New("post limit must be positive"))
	}
	if c.Jobs.StoryLimit < 0 {
		errs = append(errs, errors.New("story limit cannot be negative"))
	}
	if c.Jobs.PaceMin < 0 || c.Jobs.PaceMax < c.Jobs.PaceMin {
		errs = append(errs, errors.New("pacing window must satisfy 0 <= pace_min <= pace_max"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry attempts must be positive"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are ignored so unset flags do not clobber lower layers.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["addr"].(string); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := flags["session-backend"].(string); ok && v != "" {
		c.Session.Backend = v
	}
	if v, ok := flags["session-dir"].(string); ok && v != "" {
		c.Session.Directory = v
	}
	if v, ok := flags["media-dir"].(string); ok && v != "" {
		c.Media.Directory = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Jobs.Workers = v
	}
	if v, ok := flags["limit"].(int); ok && v > 0 {
		c.Jobs.PostLimit = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-json"].(bool); ok && v {
		c.Logging.JSON = true
	}
}

// Load loads configuration from all sources with proper precedence:
// flags > environment (including .env files) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".iganalyzer.env"))
	}

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
