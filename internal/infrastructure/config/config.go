package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Relay modes.
const (
	ModeIsolated = "isolated"
	ModeShared   = "shared"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Relay     RelayConfig     `yaml:"relay" toml:"relay"`
	Browser   BrowserConfig   `yaml:"browser" toml:"browser"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Launch    LaunchConfig    `yaml:"launch" toml:"launch"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"5001" yaml:"port" toml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host"`
}

// RelayConfig selects how connections map to browser sessions.
type RelayConfig struct {
	Mode string `envconfig:"RELAY_MODE" default:"isolated" yaml:"mode" toml:"mode"`
}

// BrowserConfig controls how Chrome is launched and captured.
type BrowserConfig struct {
	StartURL          string        `envconfig:"BROWSER_START_URL" default:"https://example.com" yaml:"start_url" toml:"start_url"`
	AutoStart         bool          `envconfig:"BROWSER_AUTO_START" default:"false" yaml:"auto_start" toml:"auto_start"`
	ExecPath          string        `envconfig:"BROWSER_EXEC_PATH" yaml:"exec_path" toml:"exec_path"`
	RemoteURL         string        `envconfig:"BROWSER_REMOTE_URL" yaml:"remote_url" toml:"remote_url"`
	Width             int           `envconfig:"BROWSER_WIDTH" default:"1280" yaml:"width" toml:"width"`
	Height            int           `envconfig:"BROWSER_HEIGHT" default:"720" yaml:"height" toml:"height"`
	Headless          bool          `envconfig:"BROWSER_HEADLESS" default:"true" yaml:"headless" toml:"headless"`
	ActionTimeout     time.Duration `envconfig:"BROWSER_ACTION_TIMEOUT" default:"30s" yaml:"action_timeout" toml:"-"`
	ScreenshotFormat  string        `envconfig:"SCREENSHOT_FORMAT" default:"jpeg" yaml:"screenshot_format" toml:"screenshot_format"`
	ScreenshotQuality int           `envconfig:"SCREENSHOT_QUALITY" default:"70" yaml:"screenshot_quality" toml:"screenshot_quality"`
}

// SessionConfig holds per-session relay settings.
type SessionConfig struct {
	DefaultFrameRate int           `envconfig:"SESSION_DEFAULT_FRAMERATE" default:"5" yaml:"default_framerate" toml:"default_framerate"`
	CommandTimeout   time.Duration `envconfig:"SESSION_COMMAND_TIMEOUT" default:"2s" yaml:"command_timeout" toml:"-"`
	CommandBuffer    int           `envconfig:"SESSION_COMMAND_BUFFER" default:"32" yaml:"command_buffer" toml:"command_buffer"`
}

// WebSocketConfig tunes the real-time channel.
type WebSocketConfig struct {
	SendBuffer      int           `envconfig:"WS_SEND_BUFFER" default:"16" yaml:"send_buffer" toml:"send_buffer"`
	MaxMessageBytes int64         `envconfig:"WS_MAX_MESSAGE_BYTES" default:"65536" yaml:"max_message_bytes" toml:"max_message_bytes"`
	PongWait        time.Duration `envconfig:"WS_PONG_WAIT" default:"60s" yaml:"pong_wait" toml:"-"`
	WriteWait       time.Duration `envconfig:"WS_WRITE_WAIT" default:"10s" yaml:"write_wait" toml:"-"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// LaunchConfig guards browser launches with a circuit breaker.
type LaunchConfig struct {
	BreakerFailures int           `envconfig:"LAUNCH_BREAKER_FAILURES" default:"3" yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerTimeout  time.Duration `envconfig:"LAUNCH_BREAKER_TIMEOUT" default:"30s" yaml:"breaker_timeout" toml:"-"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile loads environment configuration and then overlays the YAML or
// TOML file at path. Values present in the file win over the environment.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "5001",
			Host: "0.0.0.0",
		},
		Relay: RelayConfig{
			Mode: ModeIsolated,
		},
		Browser: BrowserConfig{
			StartURL:          "https://example.com",
			Width:             1280,
			Height:            720,
			Headless:          true,
			ActionTimeout:     30 * time.Second,
			ScreenshotFormat:  "jpeg",
			ScreenshotQuality: 70,
		},
		Session: SessionConfig{
			DefaultFrameRate: 5,
			CommandTimeout:   2 * time.Second,
			CommandBuffer:    32,
		},
		WebSocket: WebSocketConfig{
			SendBuffer:      16,
			MaxMessageBytes: 65536,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		Launch: LaunchConfig{
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
	}
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Relay.Mode {
	case ModeIsolated, ModeShared:
	default:
		errs = append(errs, fmt.Errorf("relay mode must be %q or %q, got %q", ModeIsolated, ModeShared, c.Relay.Mode))
	}
	switch strings.ToLower(c.Browser.ScreenshotFormat) {
	case "jpeg", "jpg", "png":
	default:
		errs = append(errs, fmt.Errorf("unsupported screenshot format %q", c.Browser.ScreenshotFormat))
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		errs = append(errs, fmt.Errorf("browser window must be positive, got %dx%d", c.Browser.Width, c.Browser.Height))
	}
	if c.Browser.ScreenshotQuality < 1 || c.Browser.ScreenshotQuality > 100 {
		errs = append(errs, fmt.Errorf("screenshot quality must be in [1,100], got %d", c.Browser.ScreenshotQuality))
	}
	if c.Browser.AutoStart && c.Relay.Mode != ModeShared {
		errs = append(errs, errors.New("browser auto start requires shared relay mode"))
	}

	return errors.Join(errs...)
}

// Shared reports whether all connections multiplex onto one session.
func (c *Config) Shared() bool {
	return c.Relay.Mode == ModeShared
}
