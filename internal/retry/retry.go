package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RETRY - Single backoff helper shared by every external-call site
// ═══════════════════════════════════════════════════════════════════════════════
//
// Classification drives the policy: transient failures (timeouts, rate
// limits, 5xx) are retried with exponential backoff up to a bounded attempt
// count; everything else fails immediately. Ad hoc per-call-site retry loops
// are deliberately not allowed anywhere else in the codebase.
//
// ═══════════════════════════════════════════════════════════════════════════════

// transientError marks an error as safe to retry
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient wraps an error so the retry helper knows it may be retried
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether an error is retryable: explicitly marked
// transient, a network timeout, or a temporary resolver failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *transientError
	if errors.As(err, &te) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}

// Do runs op, retrying transient failures with exponential backoff up to
// maxAttempts total tries. Non-transient errors and context cancellation
// abort immediately.
func Do(ctx context.Context, name string, maxAttempts uint64, op func() error) error {
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 30 * time.Second

	bo := backoff.WithContext(backoff.WithMaxRetries(exp, maxAttempts-1), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			return backoff.Permanent(err)
		}

		log.Warn().
			Err(err).
			Str("op", name).
			Int("attempt", attempt).
			Msg("⚠️ Transient failure, will retry")
		return err
	}, bo)
}
