// Package config loads the overlay source configuration from yaml, toml or json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the complete overlay source configuration.
// Zero values mean "unspecified" and are replaced by Default's values.
type Config struct {
	Width           int    `json:"width" yaml:"width" toml:"width"`
	Height          int    `json:"height" yaml:"height" toml:"height"`
	IsLive          *bool  `json:"is_live" yaml:"is_live" toml:"is_live"`
	PrintFPS        int    `json:"print_fps" yaml:"print_fps" toml:"print_fps"`       // Throughput report interval in seconds (0 = off)
	MaxBuffers      int    `json:"max_buffers" yaml:"max_buffers" toml:"max_buffers"` // Requested pool size (capped to 3)
	MaxContentBytes int    `json:"max_content_bytes" yaml:"max_content_bytes" toml:"max_content_bytes"`
	GL              bool   `json:"gl" yaml:"gl" toml:"gl"`       // Append the GL upload chain
	Sink            string `json:"sink" yaml:"sink" toml:"sink"` // Sink element factory
	ControlAddr     string `json:"control_addr" yaml:"control_addr" toml:"control_addr"`
	LogLevel        string `json:"log_level" yaml:"log_level" toml:"log_level"`    // debug, info, warn, error
	LogFormat       string `json:"log_format" yaml:"log_format" toml:"log_format"` // text, json

	Feed    FeedConfig    `json:"feed" yaml:"feed" toml:"feed"`
	Restart RestartConfig `json:"restart" yaml:"restart" toml:"restart"`
}

// FeedConfig selects the caption producers.
type FeedConfig struct {
	Socket    string `json:"socket" yaml:"socket" toml:"socket"`             // Unix socket for msgpack frames
	WatchFile string `json:"watch_file" yaml:"watch_file" toml:"watch_file"` // SVG file submitted on every change
}

// RestartConfig controls pipeline restarts after bus errors.
type RestartConfig struct {
	MaxRetries     int `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	InitialDelayMS int `json:"initial_delay_ms" yaml:"initial_delay_ms" toml:"initial_delay_ms"`
	MaxDelayMS     int `json:"max_delay_ms" yaml:"max_delay_ms" toml:"max_delay_ms"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Width:           480,
		Height:          640,
		MaxBuffers:      3,
		MaxContentBytes: 4 * 1024 * 1024,
		Sink:            "fakesink",
		LogLevel:        "info",
		LogFormat:       "text",
		Restart: RestartConfig{
			MaxRetries:     5,
			InitialDelayMS: 1000,
			MaxDelayMS:     30000,
		},
	}
}

// Load reads a configuration file over the defaults, applies environment
// overrides and validates the result.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("empty config path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv applies environment overrides. PRINT_FPS sets the throughput
// report interval in seconds.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PRINT_FPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PRINT_FPS must be an integer: %w", err)
		}
		c.PrintFPS = n
	}
	return nil
}

// Live reports the live flag (default true).
func (c *Config) Live() bool {
	return c.IsLive == nil || *c.IsLive
}

// ReportInterval returns PrintFPS as a duration.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.PrintFPS) * time.Second
}

// InitialDelay returns the first restart delay.
func (r RestartConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMS) * time.Millisecond
}

// MaxDelay returns the restart delay cap.
func (r RestartConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}
