// Package config provides configuration loading and management for VisionVoice.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/visionvoice/caption"
	"github.com/c360studio/visionvoice/narration"
)

// Config represents the complete VisionVoice configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Captioner CaptionerConfig `yaml:"captioner"`
	Narration NarrationConfig `yaml:"narration"`
	Journal   JournalConfig   `yaml:"journal"`
	Events    EventsConfig    `yaml:"events"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP boundary
type ServerConfig struct {
	// Listen is the address to bind (default: :5001)
	Listen string `yaml:"listen"`
	// MaxConnections caps concurrent connections (0 = unlimited)
	MaxConnections int `yaml:"max_connections"`
	// MaxUploadBytes caps the multipart upload size
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// RequestTimeout bounds one describe request including backoff waits
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins is the CORS origin list ("*" allows any)
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CaptionerConfig configures the captioning backend. The token itself is
// never stored in a file; it is read from the TokenEnv variable.
type CaptionerConfig struct {
	Endpoint string `yaml:"endpoint"`
	// TokenEnv names the environment variable holding the API token
	TokenEnv string `yaml:"token_env"`
	// Timeout bounds a single attempt
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	MaxSide     int           `yaml:"max_side"`
	MinSide     int           `yaml:"min_side"`
	JPEGQuality int           `yaml:"jpeg_quality"`
}

// NarrationConfig configures spoken audio
type NarrationConfig struct {
	// Enabled turns narration on (default: true)
	Enabled *bool `yaml:"enabled,omitempty"`
	// Endpoint is the text-to-speech endpoint
	Endpoint string `yaml:"endpoint"`
	Language string `yaml:"language"`
	// AudioDir is where MP3 files are written and served from
	AudioDir string `yaml:"audio_dir"`
	// KeepLatest is how many audio files survive cleanup
	KeepLatest int `yaml:"keep_latest"`
	// Janitor moves cleanup off the request path into a directory watcher
	// (default: false)
	Janitor  *bool         `yaml:"janitor,omitempty"`
	Debounce time.Duration `yaml:"debounce"`
}

// JournalConfig configures the request journal
type JournalConfig struct {
	// Path is the SQLite file (empty = journal disabled)
	Path string `yaml:"path"`
}

// EventsConfig configures event publishing
type EventsConfig struct {
	// URL is the NATS server URL (empty = publishing disabled)
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	retry := caption.DefaultRetryConfig()
	img := caption.DefaultImageConfig()
	enabled := true

	return &Config{
		Server: ServerConfig{
			Listen:          ":5001",
			MaxConnections:  256,
			MaxUploadBytes:  10 << 20,
			RequestTimeout:  5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Captioner: CaptionerConfig{
			Endpoint:    caption.DefaultEndpoint,
			TokenEnv:    caption.DefaultTokenEnv,
			Timeout:     60 * time.Second,
			MaxAttempts: retry.MaxAttempts,
			BackoffBase: retry.BackoffBase,
			MaxBackoff:  retry.MaxBackoff,
			MaxSide:     img.MaxSide,
			MinSide:     img.MinSide,
			JPEGQuality: img.JPEGQuality,
		},
		Narration: NarrationConfig{
			Enabled:    &enabled,
			Endpoint:   narration.DefaultEndpoint,
			Language:   narration.DefaultLanguage,
			AudioDir:   filepath.Join("static", "audio"),
			KeepLatest: narration.DefaultKeepLatest,
			Debounce:   500 * time.Millisecond,
		},
		Events: EventsConfig{
			SubjectPrefix: "visionvoice",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// JanitorEnabled reports whether audio cleanup runs in a directory watcher
// instead of after each narration.
func (c *Config) JanitorEnabled() bool {
	return c.Narration.Janitor != nil && *c.Narration.Janitor
}

// NarrationEnabled reports whether audio narration is on.
func (c *Config) NarrationEnabled() bool {
	return c.Narration.Enabled == nil || *c.Narration.Enabled
}

// Token returns the captioning token from the environment.
func (c *CaptionerConfig) Token(getenv func(string) string) string {
	name := c.TokenEnv
	if name == "" {
		name = caption.DefaultTokenEnv
	}
	return getenv(name)
}

// RetryConfig converts the captioner settings to a caption.RetryConfig.
func (c *CaptionerConfig) RetryConfig() caption.RetryConfig {
	return caption.RetryConfig{
		MaxAttempts: c.MaxAttempts,
		BackoffBase: c.BackoffBase,
		MaxBackoff:  c.MaxBackoff,
	}
}

// ImageConfig converts the captioner settings to a caption.ImageConfig.
func (c *CaptionerConfig) ImageConfig() caption.ImageConfig {
	return caption.ImageConfig{
		MaxSide:     c.MaxSide,
		MinSide:     c.MinSide,
		JPEGQuality: c.JPEGQuality,
	}
}

// Validate checks that the configuration is valid. The captioning endpoint
// and token are checked lazily by the captioner itself so that the server
// can start and report the problem on its health endpoint.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Captioner.Timeout <= 0 {
		return fmt.Errorf("captioner.timeout must be positive")
	}
	if c.Captioner.MaxAttempts < 1 {
		return fmt.Errorf("captioner.max_attempts must be at least 1")
	}
	if c.Captioner.BackoffBase < 0 || c.Captioner.MaxBackoff < 0 {
		return fmt.Errorf("captioner backoff durations must not be negative")
	}
	if c.Captioner.MaxSide < 0 || c.Captioner.MinSide < 0 {
		return fmt.Errorf("captioner image sides must not be negative")
	}
	if c.Captioner.MaxSide > 0 && c.Captioner.MinSide > c.Captioner.MaxSide {
		return fmt.Errorf("captioner.min_side must not exceed captioner.max_side")
	}
	if c.Captioner.JPEGQuality < 1 || c.Captioner.JPEGQuality > 100 {
		return fmt.Errorf("captioner.jpeg_quality must be between 1 and 100")
	}
	if c.NarrationEnabled() && c.Narration.AudioDir == "" {
		return fmt.Errorf("narration.audio_dir is required when narration is enabled")
	}
	if c.Narration.KeepLatest < 1 {
		return fmt.Errorf("narration.keep_latest must be at least 1")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. Fields absent from the
// file stay zero so the result can be merged over lower layers.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Listen != "" {
		c.Server.Listen = other.Server.Listen
	}
	if other.Server.MaxConnections != 0 {
		c.Server.MaxConnections = other.Server.MaxConnections
	}
	if other.Server.MaxUploadBytes != 0 {
		c.Server.MaxUploadBytes = other.Server.MaxUploadBytes
	}
	if other.Server.RequestTimeout != 0 {
		c.Server.RequestTimeout = other.Server.RequestTimeout
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
	if len(other.Server.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = other.Server.AllowedOrigins
	}

	// Captioner
	if other.Captioner.Endpoint != "" {
		c.Captioner.Endpoint = other.Captioner.Endpoint
	}
	if other.Captioner.TokenEnv != "" {
		c.Captioner.TokenEnv = other.Captioner.TokenEnv
	}
	if other.Captioner.Timeout != 0 {
		c.Captioner.Timeout = other.Captioner.Timeout
	}
	if other.Captioner.MaxAttempts != 0 {
		c.Captioner.MaxAttempts = other.Captioner.MaxAttempts
	}
	if other.Captioner.BackoffBase != 0 {
		c.Captioner.BackoffBase = other.Captioner.BackoffBase
	}
	if other.Captioner.MaxBackoff != 0 {
		c.Captioner.MaxBackoff = other.Captioner.MaxBackoff
	}
	if other.Captioner.MaxSide != 0 {
		c.Captioner.MaxSide = other.Captioner.MaxSide
	}
	if other.Captioner.MinSide != 0 {
		c.Captioner.MinSide = other.Captioner.MinSide
	}
	if other.Captioner.JPEGQuality != 0 {
		c.Captioner.JPEGQuality = other.Captioner.JPEGQuality
	}

	// Narration
	if other.Narration.Enabled != nil {
		enabled := *other.Narration.Enabled
		c.Narration.Enabled = &enabled
	}
	if other.Narration.Endpoint != "" {
		c.Narration.Endpoint = other.Narration.Endpoint
	}
	if other.Narration.Language != "" {
		c.Narration.Language = other.Narration.Language
	}
	if other.Narration.AudioDir != "" {
		c.Narration.AudioDir = other.Narration.AudioDir
	}
	if other.Narration.KeepLatest != 0 {
		c.Narration.KeepLatest = other.Narration.KeepLatest
	}
	if other.Narration.Janitor != nil {
		janitor := *other.Narration.Janitor
		c.Narration.Janitor = &janitor
	}
	if other.Narration.Debounce != 0 {
		c.Narration.Debounce = other.Narration.Debounce
	}

	// Journal
	if other.Journal.Path != "" {
		c.Journal.Path = other.Journal.Path
	}

	// Events
	if other.Events.URL != "" {
		c.Events.URL = other.Events.URL
	}
	if other.Events.SubjectPrefix != "" {
		c.Events.SubjectPrefix = other.Events.SubjectPrefix
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
