// Package retry runs an operation again when it fails with a transient error,
// doubling the wait between attempts.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 3, InitialDelay: 250 * time.Millisecond}, func() error {
//	    return store.resetOnce(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts, the first one included.
	// Zero or negative values mean a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. Each following
	// wait doubles, capped at MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
	// ShouldRetry classifies errors as transient. When nil every non-nil
	// error is retried.
	ShouldRetry func(err error) bool
	// OnRetry, when set, is called before each wait with the attempt that
	// just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig suits short local operations such as SQLite writes that hit
// a held lock.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// Delays returns the waits Do would perform between cfg.MaxAttempts
// attempts, in order.
func (cfg Config) Delays() []time.Duration {
	cfg = cfg.normalised()
	out := make([]time.Duration, 0, cfg.MaxAttempts-1)
	delay := cfg.InitialDelay
	for i := 1; i < cfg.MaxAttempts; i++ {
		out = append(out, delay)
		delay = min(delay*2, cfg.MaxDelay)
	}
	return out
}

func (cfg Config) normalised() Config {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(error) bool { return true }
	}
	return cfg
}

// Do calls fn until it succeeds, returns a non-retryable error, or
// cfg.MaxAttempts is reached. It stops early when ctx is cancelled.
// The error from the last attempt is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.normalised()

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !cfg.ShouldRetry(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		} else {
			slog.Debug("retry: attempt failed, retrying",
				"attempt", attempt, "max", cfg.MaxAttempts,
				"err", lastErr, "delay", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay = min(delay*2, cfg.MaxDelay)
	}

	return lastErr
}
