package gstsrc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// RestartConfig contains configuration for exponential backoff restarts.
type RestartConfig struct {
	MaxRetries   int           // Consecutive failures before giving up (default: 5)
	InitialDelay time.Duration // First retry delay (default: 1 second)
	MaxDelay     time.Duration // Retry delay cap (default: 30 seconds)
}

// DefaultRestartConfig returns the default restart configuration.
func DefaultRestartConfig() RestartConfig {
	return RestartConfig{
		MaxRetries:   5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// RestartState tracks consecutive failures and total restarts.
//
// Reset is called by the bus monitor when the pipeline reaches PLAYING, from
// a different goroutine than RunWithRestart.
type RestartState struct {
	retries  atomic.Int32
	restarts atomic.Uint32
}

// Reset clears the consecutive failure counter.
func (s *RestartState) Reset() {
	s.retries.Store(0)
}

// Restarts returns the total number of restarts.
func (s *RestartState) Restarts() uint32 {
	return s.restarts.Load()
}

// RunFunc runs one pipeline instance until it ends. nil means a clean end
// (EOS or cancellation).
type RunFunc func(ctx context.Context) error

// RunWithRestart runs fn, restarting it with exponential backoff after
// restartable failures.
//
// Backoff schedule (defaults): 1s, 2s, 4s, 8s, 16s, then give up.
//
// Returns nil on a clean end or cancellation, the failure itself when it is
// not restartable, or an error once MaxRetries consecutive failures occurred.
func RunWithRestart(
	ctx context.Context,
	fn RunFunc,
	cfg RestartConfig,
	state *RestartState,
	onRestart func(),
	logger *slog.Logger,
) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := fn(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrNotRestartable) {
			logger.Error("gstsrc: pipeline failed, not restarting", "error", err)
			return err
		}

		retries := int(state.retries.Add(1))
		if retries > cfg.MaxRetries {
			return fmt.Errorf("gstsrc: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(retries, cfg)
		logger.Warn("gstsrc: restarting pipeline",
			"error", err,
			"attempt", retries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.Info("gstsrc: context cancelled during backoff")
			return nil
		}

		state.restarts.Add(1)
		if onRestart != nil {
			onRestart()
		}
	}
}

// calculateBackoff returns initialDelay * 2^(attempt-1), capped at maxDelay.
func calculateBackoff(attempt int, cfg RestartConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return cfg.MaxDelay
	}
	delay := cfg.InitialDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}
