package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the archiver
type Config struct {
	// Archive tree and catalog location
	Archive ArchiveConfig `yaml:"archive" json:"archive"`

	// Upstream endpoints and session
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Thumbnail sizes
	Thumbnails ThumbnailConfig `yaml:"thumbnails" json:"thumbnails"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ArchiveConfig holds the on-disk archive location
type ArchiveConfig struct {
	Root        string `yaml:"root" json:"root"`
	CatalogFile string `yaml:"catalog_file" json:"catalog_file"`
}

// UpstreamConfig holds upstream endpoint configuration
type UpstreamConfig struct {
	// StoryAPI serves stories/highlights; requires session tokens
	StoryAPI string `yaml:"story_api" json:"story_api"`
	// PostMirror serves post pages and cursor feeds
	PostMirror string `yaml:"post_mirror" json:"post_mirror"`
	// ProfileAPI serves profile metadata
	ProfileAPI string `yaml:"profile_api" json:"profile_api"`
	UserAgent  string `yaml:"user_agent" json:"user_agent"`
	// AccessToken/RefreshToken seed the session when no stored tokens exist
	AccessToken  string `yaml:"access_token" json:"access_token"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
	Workers       int           `yaml:"workers" json:"workers"`
}

// ThumbnailConfig holds the fixed thumbnail variants
type ThumbnailConfig struct {
	AvatarSize int `yaml:"avatar_size" json:"avatar_size"`
	CoverSize  int `yaml:"cover_size" json:"cover_size"`
	MediaSize  int `yaml:"media_size" json:"media_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Root:        "./storage",
			CatalogFile: "data.db",
		},
		Upstream: UpstreamConfig{
			StoryAPI:   "https://stealthgram.com",
			PostMirror: "https://imginn.com",
			ProfileAPI: "https://anonyig.com",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			MaxRetries:        3,
			RetryDelay:        30 * time.Second,
		},
		Download: DownloadConfig{
			Timeout:       60 * time.Second,
			RetryAttempts: 3,
			Workers:       1,
		},
		Thumbnails: ThumbnailConfig{
			AvatarSize: 128,
			CoverSize:  64,
			MediaSize:  320,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional yaml file,
// the environment and command line overrides, in that order.
func Load(path string, flags map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.applyFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // no config file found, not an error
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

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".igarchive.yaml",
		".igarchive.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "igarchive", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".igarchive.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if root := os.Getenv("IGARCHIVE_ROOT"); root != "" {
		c.Archive.Root = root
	}
	if token := os.Getenv("IGARCHIVE_ACCESS_TOKEN"); token != "" {
		c.Upstream.AccessToken = token
	}
	if token := os.Getenv("IGARCHIVE_REFRESH_TOKEN"); token != "" {
		c.Upstream.RefreshToken = token
	}
	if agent := os.Getenv("IGARCHIVE_USER_AGENT"); agent != "" {
		c.Upstream.UserAgent = agent
	}
	if rpm := os.Getenv("IGARCHIVE_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if workers := os.Getenv("IGARCHIVE_WORKERS"); workers != "" {
		if val, err := strconv.Atoi(workers); err == nil && val > 0 {
			c.Download.Workers = val
		}
	}
	if level := os.Getenv("IGARCHIVE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

// applyFlags applies command line overrides
func (c *Config) applyFlags(flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "root":
			if v, ok := value.(string); ok && v != "" {
				c.Archive.Root = v
			}
		case "access-token":
			if v, ok := value.(string); ok && v != "" {
				c.Upstream.AccessToken = v
			}
		case "refresh-token":
			if v, ok := value.(string); ok && v != "" {
				c.Upstream.RefreshToken = v
			}
		case "rate-limit":
			if v, ok := value.(int); ok && v > 0 {
				c.RateLimit.RequestsPerMinute = v
			}
		case "workers":
			if v, ok := value.(int); ok && v > 0 {
				c.Download.Workers = v
			}
		case "log-level":
			if v, ok := value.(string); ok && v != "" {
				c.Logging.Level = v
			}
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []string

	if c.Archive.Root == "" {
		errs = append(errs, "archive root is required")
	}
	if c.Archive.CatalogFile == "" {
		errs = append(errs, "catalog file name is required")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "requests per minute must be positive")
	}
	if c.Download.RetryAttempts < 0 {
		errs = append(errs, "retry attempts must not be negative")
	}
	if c.Download.Workers <= 0 {
		errs = append(errs, "workers must be positive")
	}
	for _, size := range []int{c.Thumbnails.AvatarSize, c.Thumbnails.CoverSize, c.Thumbnails.MediaSize} {
		if size <= 0 {
			errs = append(errs, "thumbnail sizes must be positive")
			break
		}
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}

// CatalogPath returns the absolute path of the catalog database file
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Archive.Root, c.Archive.CatalogFile)
}
