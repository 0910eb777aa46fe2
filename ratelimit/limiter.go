package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ADAPTIVE RATE LIMITER - Throttle for rate-limited external APIs
// ═══════════════════════════════════════════════════════════════════════════════
//
// Two feedback paths tune the inter-call delay:
//   1. Rolling call-count window: above the upper bound the delay grows
//      multiplicatively, comfortably below the lower bound it decays back
//      toward the base delay.
//   2. Explicit OnSuccess/OnFailure signals from callers, so a 429 from the
//      API widens the delay immediately regardless of the window heuristic.
//
// Worst case is added latency, never a dropped request.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config bounds the limiter's behaviour
type Config struct {
	BaseDelay  time.Duration // delay when the API is healthy
	MaxDelay   time.Duration // hard ceiling
	Window     time.Duration // rolling window for call counting
	UpperCalls int           // calls/window above which delay grows
	LowerCalls int           // calls/window below which delay decays
}

// DefaultConfig matches a public indexer allowing ~1 req/s sustained
func DefaultConfig() Config {
	return Config{
		BaseDelay:  time.Second,
		MaxDelay:   2 * time.Minute,
		Window:     time.Minute,
		UpperCalls: 45,
		LowerCalls: 20,
	}
}

// AdaptiveLimiter throttles outbound calls. AwaitSlot blocks the caller until
// the next call is safe to issue.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	cfg     Config
	delay   time.Duration
	limiter *rate.Limiter
	calls   []time.Time

	failures  int64
	successes int64
}

// New creates an adaptive limiter starting at the base delay
func New(cfg Config) *AdaptiveLimiter {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 10 * cfg.BaseDelay
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return &AdaptiveLimiter{
		cfg:     cfg,
		delay:   cfg.BaseDelay,
		limiter: rate.NewLimiter(rate.Every(cfg.BaseDelay), 1),
	}
}

// AwaitSlot blocks until it is safe to issue the next external call.
// Returns early with the context error on cancellation.
func (l *AdaptiveLimiter) AwaitSlot(ctx context.Context) error {
	l.mu.Lock()
	l.recordCall()
	l.adjustFromWindow()
	l.mu.Unlock()

	return l.limiter.Wait(ctx)
}

// OnSuccess signals a healthy API response; the delay decays toward base
func (l *AdaptiveLimiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successes++
	l.setDelay(time.Duration(float64(l.delay) * 0.9))
}

// OnFailure signals a rate-limit or error response; the delay doubles at once
func (l *AdaptiveLimiter) OnFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures++
	old := l.delay
	l.setDelay(l.delay * 2)

	if l.delay != old {
		log.Warn().
			Dur("old_delay", old).
			Dur("new_delay", l.delay).
			Int64("failures", l.failures).
			Msg("⏳ Rate limiter backing off")
	}
}

// CurrentDelay returns the present inter-call delay
func (l *AdaptiveLimiter) CurrentDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delay
}

// recordCall appends now and prunes timestamps outside the window.
// Caller holds the lock.
func (l *AdaptiveLimiter) recordCall() {
	now := time.Now()
	cutoff := now.Add(-l.cfg.Window)

	kept := l.calls[:0]
	for _, t := range l.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.calls = append(kept, now)
}

// adjustFromWindow applies the rolling-window heuristic. Caller holds the lock.
func (l *AdaptiveLimiter) adjustFromWindow() {
	n := len(l.calls)
	switch {
	case l.cfg.UpperCalls > 0 && n > l.cfg.UpperCalls:
		l.setDelay(time.Duration(float64(l.delay) * 1.5))
	case l.cfg.LowerCalls > 0 && n < l.cfg.LowerCalls:
		l.setDelay(time.Duration(float64(l.delay) * 0.95))
	}
}

// setDelay clamps and applies a new delay to the underlying limiter.
// Caller holds the lock.
func (l *AdaptiveLimiter) setDelay(d time.Duration) {
	if d < l.cfg.BaseDelay {
		d = l.cfg.BaseDelay
	}
	if d > l.cfg.MaxDelay {
		d = l.cfg.MaxDelay
	}
	if d == l.delay {
		return
	}
	l.delay = d
	l.limiter.SetLimit(rate.Every(d))
}
