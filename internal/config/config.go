package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	A2F     A2FConfig     `yaml:"a2f"`
	Audio   AudioConfig   `yaml:"audio"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port         int    `yaml:"port"`
	Address      string `yaml:"address"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds, covers a whole streaming request
	IdleTimeout  int    `yaml:"idle_timeout"`  // seconds
}

// A2FConfig contains the Audio2Face REST API configuration
type A2FConfig struct {
	BaseURL        string `yaml:"base_url"`
	PlayerInstance string `yaml:"player_instance"`
	LivelinkNode   string `yaml:"livelink_node"`
	Timeout        int    `yaml:"timeout"` // seconds
}

// AudioConfig contains audio reading and initialization parameters
type AudioConfig struct {
	InitSampleLength int    `yaml:"init_sample_length"`
	InitSampleUnit   string `yaml:"init_sample_unit"` // "bytes" or "ms"
	ReadBufferSize   int    `yaml:"read_buffer_size"` // bytes
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:         3000,
			Address:      "0.0.0.0",
			ReadTimeout:  10,
			WriteTimeout: 600,
			IdleTimeout:  60,
		},
		A2F: A2FConfig{
			BaseURL:        "http://localhost:8011",
			PlayerInstance: "/World/audio2face/Player",
			LivelinkNode:   "/World/audio2face/StreamLivelink",
			Timeout:        30,
		},
		Audio: AudioConfig{
			InitSampleLength: 1000,
			InitSampleUnit:   "bytes",
			ReadBufferSize:   4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file at path on top of the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the whole configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.A2F.Validate(); err != nil {
		return fmt.Errorf("a2f config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.ReadTimeout < 0 || h.WriteTimeout < 0 || h.IdleTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	return nil
}

// Validate validates Audio2Face configuration
func (a *A2FConfig) Validate() error {
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", a.BaseURL, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", a.BaseURL)
	}

	if a.PlayerInstance == "" {
		return fmt.Errorf("player_instance cannot be empty")
	}

	if a.LivelinkNode == "" {
		return fmt.Errorf("livelink_node cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.InitSampleLength < 1 {
		return fmt.Errorf("init_sample_length must be positive, got %d", a.InitSampleLength)
	}

	validUnits := map[string]bool{"bytes": true, "ms": true}
	if !validUnits[a.InitSampleUnit] {
		return fmt.Errorf("init_sample_unit must be 'bytes' or 'ms', got '%s'", a.InitSampleUnit)
	}

	if a.ReadBufferSize < 512 {
		return fmt.Errorf("read_buffer_size must be at least 512 bytes, got %d", a.ReadBufferSize)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// anything other than stdout/stderr is a file path
	return nil
}

// GetReadTimeout returns the HTTP read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a time.Duration
func (h *HTTPConfig) GetIdleTimeout() time.Duration {
	return time.Duration(h.IdleTimeout) * time.Second
}

// GetTimeoutDuration returns the Audio2Face request timeout as a time.Duration
func (a *A2FConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}
