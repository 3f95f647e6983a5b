// Package retry implements the bounded retry-with-backoff policy the
// object-store client uses: at most a fixed number of retries and a
// bounded per-request timeout, after which the caller sees a transport
// error. The filesystem process never retries a failed call itself — that
// policy lives here, with the store client, not with its callers.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts  int           // including the initial attempt
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	PerCallTimeout time.Duration
}

// DefaultConfig returns a conservative bounded retry (2 attempts) and a
// 7s per-request timeout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    2,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
		PerCallTimeout: 7 * time.Second,
	}
}

// Classifier reports whether err should trigger a retry. Callers that don't
// care pass nil to Do, which then treats every error as retryable.
type Classifier func(err error) bool

// Do runs fn up to cfg.MaxAttempts times, applying cfg.PerCallTimeout to
// each attempt via a derived context, and exponential backoff with optional
// jitter between attempts. It stops early if classify returns false for an
// error (non-retryable), or if ctx is done.
func Do(ctx context.Context, cfg Config, classify Classifier, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if classify == nil {
		classify = func(error) bool { return true }
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if cfg.PerCallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cfg.PerCallTimeout)
		}
		err := fn(callCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(ctx.Err(), context.Canceled) {
			return err
		}
		if attempt == cfg.MaxAttempts || !classify(err) {
			return err
		}

		wait := delay
		if cfg.Jitter {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return lastErr
		}

		next := float64(delay) * cfg.Multiplier
		if cfg.MaxDelay > 0 && next > float64(cfg.MaxDelay) {
			next = float64(cfg.MaxDelay)
		}
		delay = time.Duration(math.Max(next, float64(cfg.InitialDelay)))
	}
	return lastErr
}
