package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CIRCUIT BREAKER - Protection against sustained losses
// ═══════════════════════════════════════════════════════════════════════════════
//
// Normal → Tripped when daily loss, consecutive losses, or the trailing
// failure rate exceeds its configured maximum. Tripped → Normal when the
// cooldown elapses or the UTC calendar date advances past the last reset
// date. A day boundary always clears daily loss and the loss streak.
//
// Every mutation happens inside the breaker's lock and is followed by a
// durable state write, so a restart mid-day resumes with the correct
// loss budget instead of silently resetting it.
//
// ═══════════════════════════════════════════════════════════════════════════════

const dateLayout = "2006-01-02"

// State is the persisted breaker record. All times are UTC.
type State struct {
	DailyLoss         decimal.Decimal `json:"daily_loss"` // positive number of dollars lost today
	ConsecutiveLosses int             `json:"consecutive_losses"`
	Tripped           bool            `json:"tripped"`
	TrippedAt         *time.Time      `json:"tripped_at,omitempty"`
	LastResetDate     string          `json:"last_reset_date"` // "2006-01-02"
	Reason            string          `json:"reason,omitempty"`
}

// StateStore persists breaker state across restarts
type StateStore interface {
	SaveBreakerState(State) error
	LoadBreakerState() (State, bool, error)
}

// BreakerConfig holds trip thresholds
type BreakerConfig struct {
	MaxDailyLoss         decimal.Decimal // dollars
	MaxConsecutiveLosses int
	MaxFailureRate       float64 // losses / trailing results
	FailureRateWindow    int     // trailing result count, min samples = window/2
	Cooldown             time.Duration
}

// CircuitBreaker gates all new trades
type CircuitBreaker struct {
	mu    sync.Mutex
	cfg   BreakerConfig
	state State
	store StateStore

	// trailing result ring for the failure-rate check; true = loss
	recent []bool

	onTrip  func(reason string)
	onReset func(reason string)

	now func() time.Time
}

// NewCircuitBreaker restores persisted state if present. A load failure is
// fatal: trading with an unknown loss budget is worse than not starting.
func NewCircuitBreaker(cfg BreakerConfig, store StateStore) (*CircuitBreaker, error) {
	cb := &CircuitBreaker{
		cfg:   cfg,
		store: store,
		now:   time.Now,
	}

	st, found, err := store.LoadBreakerState()
	if err != nil {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}
	if found {
		cb.state = st
		log.Info().
			Str("daily_loss", st.DailyLoss.StringFixed(2)).
			Int("consecutive_losses", st.ConsecutiveLosses).
			Bool("tripped", st.Tripped).
			Str("last_reset_date", st.LastResetDate).
			Msg("💾 Circuit breaker state restored")
	} else {
		cb.state = State{
			DailyLoss:     decimal.Zero,
			LastResetDate: cb.today(),
		}
		if err := store.SaveBreakerState(cb.state); err != nil {
			return nil, fmt.Errorf("persist initial breaker state: %w", err)
		}
	}

	return cb, nil
}

// OnTrip registers a callback fired (outside the lock) whenever the breaker trips
func (cb *CircuitBreaker) OnTrip(fn func(reason string)) { cb.onTrip = fn }

// OnReset registers a callback fired whenever the breaker returns to Normal
func (cb *CircuitBreaker) OnReset(fn func(reason string)) { cb.onReset = fn }

// MayTrade reports whether new trades are allowed. Handles the daily reset
// and cooldown expiry as side effects.
func (cb *CircuitBreaker) MayTrade() bool {
	cb.mu.Lock()

	resetReason := cb.maybeResetDaily()

	if resetReason == "" && cb.state.Tripped {
		if cb.state.TrippedAt != nil && cb.now().UTC().Sub(*cb.state.TrippedAt) >= cb.cfg.Cooldown {
			cb.state.Tripped = false
			cb.state.TrippedAt = nil
			cb.state.ConsecutiveLosses = 0
			cb.state.Reason = ""
			cb.persist()
			resetReason = "cooldown elapsed"
			log.Info().Msg("✅ Circuit breaker reset after cooldown")
		}
	}

	allowed := !cb.state.Tripped
	cb.mu.Unlock()

	if resetReason != "" && cb.onReset != nil {
		cb.onReset(resetReason)
	}

	return allowed
}

// RecordResult folds a realized P&L into the breaker state
func (cb *CircuitBreaker) RecordResult(pnl decimal.Decimal) {
	cb.mu.Lock()

	cb.maybeResetDaily()

	loss := pnl.IsNegative()
	cb.recent = append(cb.recent, loss)
	if w := cb.cfg.FailureRateWindow; w > 0 && len(cb.recent) > w {
		cb.recent = cb.recent[len(cb.recent)-w:]
	}

	if loss {
		cb.state.ConsecutiveLosses++
		cb.state.DailyLoss = cb.state.DailyLoss.Add(pnl.Abs())
	} else {
		cb.state.ConsecutiveLosses = 0
	}

	var tripReason string
	switch {
	case cb.state.Tripped:
		// already tripped, nothing more to do
	case cb.cfg.MaxDailyLoss.IsPositive() && cb.state.DailyLoss.GreaterThan(cb.cfg.MaxDailyLoss):
		tripReason = fmt.Sprintf("daily loss %s exceeds max %s",
			cb.state.DailyLoss.StringFixed(2), cb.cfg.MaxDailyLoss.StringFixed(2))
	case cb.cfg.MaxConsecutiveLosses > 0 && cb.state.ConsecutiveLosses >= cb.cfg.MaxConsecutiveLosses:
		tripReason = fmt.Sprintf("%d consecutive losses", cb.state.ConsecutiveLosses)
	case cb.failureRateExceeded():
		tripReason = fmt.Sprintf("trailing failure rate above %.0f%%", cb.cfg.MaxFailureRate*100)
	}

	if tripReason != "" {
		cb.trip(tripReason)
	} else {
		cb.persist()
	}

	log.Info().
		Str("pnl", pnl.StringFixed(2)).
		Str("daily_loss", cb.state.DailyLoss.StringFixed(2)).
		Int("consecutive_losses", cb.state.ConsecutiveLosses).
		Msg("📊 Trade result recorded")

	cb.mu.Unlock()

	if tripReason != "" && cb.onTrip != nil {
		cb.onTrip(tripReason)
	}
}

// ManualTrip halts trading until reset or the next UTC day
func (cb *CircuitBreaker) ManualTrip(reason string) {
	cb.mu.Lock()
	cb.trip("manual: " + reason)
	cb.mu.Unlock()

	if cb.onTrip != nil {
		cb.onTrip(reason)
	}
}

// ManualReset clears a trip without waiting for cooldown or day boundary
func (cb *CircuitBreaker) ManualReset() {
	cb.mu.Lock()
	cb.state.Tripped = false
	cb.state.TrippedAt = nil
	cb.state.ConsecutiveLosses = 0
	cb.state.Reason = ""
	cb.persist()
	cb.mu.Unlock()

	log.Info().Msg("Circuit breaker manually reset")
	if cb.onReset != nil {
		cb.onReset("manual reset")
	}
}

// GetState returns a read-only snapshot
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.state
	if st.TrippedAt != nil {
		t := *st.TrippedAt
		st.TrippedAt = &t
	}
	return st
}

// today returns the current UTC calendar date. The reset comparison is
// date-string equality, never datetime inequality: a bot started just before
// midnight must still reset when the date flips.
func (cb *CircuitBreaker) today() string {
	return cb.now().UTC().Format(dateLayout)
}

// maybeResetDaily clears daily counters when the UTC date has advanced.
// Caller holds the lock. Returns a non-empty reason when a reset happened.
func (cb *CircuitBreaker) maybeResetDaily() string {
	today := cb.today()
	if cb.state.LastResetDate == today {
		return ""
	}

	wasTripped := cb.state.Tripped
	cb.state.DailyLoss = decimal.Zero
	cb.state.ConsecutiveLosses = 0
	cb.state.Tripped = false
	cb.state.TrippedAt = nil
	cb.state.Reason = ""
	cb.state.LastResetDate = today
	cb.recent = nil
	cb.persist()

	log.Info().Str("date", today).Msg("📅 Daily loss budget reset")
	if wasTripped {
		return "UTC day boundary"
	}
	return "daily reset"
}

// trip marks the breaker tripped and persists. Caller holds the lock.
func (cb *CircuitBreaker) trip(reason string) {
	now := cb.now().UTC()
	cb.state.Tripped = true
	cb.state.TrippedAt = &now
	cb.state.Reason = reason
	cb.persist()

	log.Warn().
		Str("reason", reason).
		Str("daily_loss", cb.state.DailyLoss.StringFixed(2)).
		Int("consecutive_losses", cb.state.ConsecutiveLosses).
		Dur("cooldown", cb.cfg.Cooldown).
		Msg("🚨 CIRCUIT BREAKER TRIPPED")
}

// failureRateExceeded checks the trailing result ring. Caller holds the lock.
func (cb *CircuitBreaker) failureRateExceeded() bool {
	w := cb.cfg.FailureRateWindow
	if cb.cfg.MaxFailureRate <= 0 || w <= 0 || len(cb.recent) < w/2 {
		return false
	}

	losses := 0
	for _, l := range cb.recent {
		if l {
			losses++
		}
	}
	return float64(losses)/float64(len(cb.recent)) > cb.cfg.MaxFailureRate
}

// persist writes state after a mutation. Caller holds the lock. A write
// failure is logged loudly but does not halt in-memory accounting.
func (cb *CircuitBreaker) persist() {
	if err := cb.store.SaveBreakerState(cb.state); err != nil {
		log.Error().Err(err).Msg("❌ Failed to persist circuit breaker state")
	}
}
