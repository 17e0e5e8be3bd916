// Package retry runs fallible operations under a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/rs/zerolog"
)

// Policy describes how an operation is retried. The zero value is not usable;
// start from DefaultPolicy or build one from configuration with FromSettings.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool

	// RetryableErrors limits retries to errors matching one of these via errors.Is.
	// An empty list retries every error.
	RetryableErrors []error

	// Name labels the operation in log events.
	Name string
}

// DefaultPolicy returns the shared policy for collaborator calls: 3 attempts with a 30s base delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     contract.DefaultMaxAttempts,
		BaseDelay:       contract.DefaultBaseDelay,
		MaxDelay:        contract.DefaultMaxDelay,
		ExponentialBase: contract.DefaultExponentialBase,
		Jitter:          true,
	}
}

// FromSettings builds a policy from validated configuration.
func FromSettings(s contract.RetrySettings) Policy {
	return Policy{
		MaxAttempts:     s.MaxAttempts,
		BaseDelay:       s.BaseDelay,
		MaxDelay:        s.MaxDelay,
		ExponentialBase: s.ExponentialBase,
		Jitter:          s.Jitter,
	}
}

// Named returns a copy of the policy labelled for logging.
func (p Policy) Named(name string) Policy {
	p.Name = name
	return p
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return contract.NewConfigurationError("retry.max-attempts", fmt.Sprint(p.MaxAttempts), "must be at least 1")
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return contract.NewConfigurationError("retry.base-delay", p.BaseDelay.String(), "delays must not be negative")
	}
	if p.ExponentialBase < 1 {
		return contract.NewConfigurationError("retry.exponential-base", fmt.Sprint(p.ExponentialBase), "must be at least 1.0")
	}
	return nil
}

// Delay returns the wait after the given zero-based failed attempt, before jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// wait returns the jittered delay for the attempt.
func (p Policy) wait(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// IsRetryable reports whether err may be retried under this policy.
func (p Policy) IsRetryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) || contract.IsConfigurationError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if len(p.RetryableErrors) == 0 {
		return true
	}
	for _, target := range p.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Do runs op until it succeeds, fails with a non-retryable error, or attempts run out.
// The error from the last attempt is returned unchanged. Backoff waits end early
// when ctx is done, returning the last operation error joined with ctx.Err().
func Do[T any](ctx context.Context, p Policy, logger zerolog.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := range attempts {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.IsRetryable(err) {
			return zero, unwrapPermanent(err)
		}
		if attempt == attempts-1 {
			logger.Error().Err(err).Str("op", p.Name).Int("attempts", attempts).Msg("Operation failed after all attempts")
			break
		}

		delay := p.wait(attempt)
		logger.Warn().Err(err).
			Str("op", p.Name).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("backoff", delay).
			Msg("Operation failed, will retry")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Join(lastErr, ctx.Err())
		}
	}
	return zero, lastErr
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, p Policy, logger zerolog.Logger, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do stops immediately. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func unwrapPermanent(err error) error {
	var perm *permanentError
	if errors.As(err, &perm) && perm == err {
		return perm.err
	}
	return err
}
