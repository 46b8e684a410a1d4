package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"wiki-data-pipeline/internal/logging"
	"wiki-data-pipeline/internal/model"
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retry loop gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether err may succeed on another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *permanentError
	return !errors.As(err, &perm)
}

// Backoff returns the delay before the given retry (1 = first retry).
func Backoff(cfg model.RetryConfig, retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	multiplier := cfg.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(multiplier, float64(retry-1)))
	if cfg.MaxDelay > 0 && (delay > cfg.MaxDelay || delay < 0) {
		delay = cfg.MaxDelay
	}
	return delay
}

func withJitter(delay time.Duration) time.Duration {
	// +/-10%
	return delay + time.Duration(float64(delay)*0.2*(rand.Float64()-0.5))
}

// Retrier runs an operation until it succeeds, fails permanently or runs out
// of attempts.
type Retrier struct {
	Config model.RetryConfig
	Logger *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// Do returns the number of attempts made and the last error.
func (r Retrier) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	attempts := r.Config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return attempt, nil
		}
		if !IsRetryable(err) || attempt == attempts {
			return attempt, unwrapPermanent(err)
		}

		delay := Backoff(r.Config, attempt)
		if r.Config.Jitter {
			delay = withJitter(delay)
		}
		logger.Warn("attempt failed, retrying",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, serr
		}
	}
	return attempts, err
}

func unwrapPermanent(err error) error {
	if perm, ok := err.(*permanentError); ok {
		return perm.err
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
