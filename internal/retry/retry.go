// Package retry runs provider calls under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// Policy bounds how often and how slowly a provider call is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns 3 attempts with 500ms, 1s backoff capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Delay returns the wait before the given retry (1-based attempt that just failed).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalize()
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the context ends or
// the policy is exhausted. Exhaustion yields a *types.ProviderFailureError.
func Do(ctx context.Context, p Policy, provider string, fn func(ctx context.Context) error) error {
	p = p.normalize()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		delay := p.Delay(attempt)
		log.Warn().Err(err).Str("provider", provider).Int("attempt", attempt).
			Dur("backoff", delay).Msg("provider call failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &types.ProviderFailureError{Provider: provider, Attempts: attempt, Cause: ctx.Err()}
		case <-timer.C:
		}
	}
	return &types.ProviderFailureError{Provider: provider, Attempts: p.MaxAttempts, Cause: lastErr}
}
