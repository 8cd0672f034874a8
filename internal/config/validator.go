package config

import (
	"fmt"
	"math"
)

// Validate checks the configuration and fills defaults for optional fields.
func Validate(cfg *Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("width and height must be > 0 (got %dx%d)", cfg.Width, cfg.Height)
	}
	if cfg.Width > math.MaxInt32/4/cfg.Height {
		return fmt.Errorf("frame %dx%d exceeds the maximum frame size", cfg.Width, cfg.Height)
	}
	if cfg.PrintFPS < 0 {
		return fmt.Errorf("print_fps must be >= 0")
	}
	if cfg.MaxBuffers < 0 {
		return fmt.Errorf("max_buffers must be >= 0")
	}
	if cfg.MaxContentBytes < 0 {
		return fmt.Errorf("max_content_bytes must be >= 0")
	}
	if cfg.Sink == "" {
		return fmt.Errorf("sink is required")
	}

	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json")
	}

	if err := validateRestart(&cfg.Restart); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	return nil
}

func validateRestart(r *RestartConfig) error {
	if r.MaxRetries < 0 || r.InitialDelayMS < 0 || r.MaxDelayMS < 0 {
		return fmt.Errorf("values must be >= 0")
	}
	if r.InitialDelayMS == 0 {
		r.InitialDelayMS = 1000
	}
	if r.MaxDelayMS == 0 {
		r.MaxDelayMS = 30000
	}
	if r.MaxDelayMS < r.InitialDelayMS {
		return fmt.Errorf("max_delay_ms (%d) must be >= initial_delay_ms (%d)", r.MaxDelayMS, r.InitialDelayMS)
	}
	return nil
}
