package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory StateStore for tests
type memStore struct {
	mu    sync.Mutex
	state State
	set   bool
	saves int
}

func (m *memStore) SaveBreakerState(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.set = true
	m.saves++
	return nil
}

func (m *memStore) LoadBreakerState() (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.set, nil
}

func testConfig() BreakerConfig {
	return BreakerConfig{
		MaxDailyLoss:         decimal.NewFromInt(100),
		MaxConsecutiveLosses: 3,
		MaxFailureRate:       0.8,
		FailureRateWindow:    20,
		Cooldown:             2 * time.Hour,
	}
}

func newTestBreaker(t *testing.T, store *memStore) *CircuitBreaker {
	t.Helper()
	cb, err := NewCircuitBreaker(testConfig(), store)
	require.NoError(t, err)
	return cb
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestTripsOnConsecutiveLosses(t *testing.T) {
	cb := newTestBreaker(t, &memStore{})

	// three consecutive losses of 10, 15, 20 against a threshold of 3
	cb.RecordResult(d(-10))
	assert.True(t, cb.MayTrade())
	cb.RecordResult(d(-15))
	assert.True(t, cb.MayTrade())
	cb.RecordResult(d(-20))

	assert.False(t, cb.MayTrade(), "breaker must trip after the third loss")
}

func TestTripsOnDailyLoss(t *testing.T) {
	cb := newTestBreaker(t, &memStore{})

	// wins between losses keep the streak below threshold
	cb.RecordResult(d(-60))
	cb.RecordResult(d(5))
	cb.RecordResult(d(-50))

	assert.False(t, cb.MayTrade(), "daily loss 110 exceeds max 100")
	assert.Equal(t, "110", cb.GetState().DailyLoss.String())
}

func TestNoTripBelowThresholds(t *testing.T) {
	cb := newTestBreaker(t, &memStore{})

	cb.RecordResult(d(-30))
	cb.RecordResult(d(-30))
	cb.RecordResult(d(10))
	cb.RecordResult(d(-30))

	assert.True(t, cb.MayTrade(), "90 lost, max streak 2: must not trip")
}

func TestWinResetsStreak(t *testing.T) {
	cb := newTestBreaker(t, &memStore{})

	cb.RecordResult(d(-1))
	cb.RecordResult(d(-1))
	cb.RecordResult(d(2))

	assert.Equal(t, 0, cb.GetState().ConsecutiveLosses)
}

func TestCooldownReset(t *testing.T) {
	cb := newTestBreaker(t, &memStore{})

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return base }
	// the breaker was constructed with the real clock; align the reset date
	// with the fake clock so MayTrade doesn't see a day boundary
	cb.state.LastResetDate = cb.today()

	cb.ManualTrip("test")
	require.False(t, cb.MayTrade())

	cb.now = func() time.Time { return base.Add(time.Hour) }
	assert.False(t, cb.MayTrade(), "cooldown not yet elapsed")

	cb.now = func() time.Time { return base.Add(2*time.Hour + time.Minute) }
	assert.True(t, cb.MayTrade(), "cooldown elapsed")
}

func TestDayBoundaryClearsTripBeforeCooldown(t *testing.T) {
	cb := newTestBreaker(t, &memStore{})

	// tripped at 23:58 UTC with a 2h cooldown
	trippedAt := time.Date(2026, 3, 10, 23, 58, 0, 0, time.UTC)
	cb.now = func() time.Time { return trippedAt }
	cb.RecordResult(d(-40))
	cb.RecordResult(d(-40))
	cb.RecordResult(d(-40))
	require.False(t, cb.MayTrade())

	// 00:05 the next day: date advanced, cooldown timer irrelevant
	cb.now = func() time.Time { return time.Date(2026, 3, 11, 0, 5, 0, 0, time.UTC) }
	assert.True(t, cb.MayTrade(), "UTC date advance must clear the trip")

	st := cb.GetState()
	assert.True(t, st.DailyLoss.IsZero())
	assert.Equal(t, 0, st.ConsecutiveLosses)
	assert.Equal(t, "2026-03-11", st.LastResetDate)
}

func TestDailyResetIsIdempotent(t *testing.T) {
	store := &memStore{}
	cb := newTestBreaker(t, store)

	day := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return day }

	cb.RecordResult(d(-5))
	before := cb.GetState()

	// repeated gate checks on the same date must not reset again
	for i := 0; i < 5; i++ {
		cb.MayTrade()
	}
	after := cb.GetState()

	assert.Equal(t, before.DailyLoss.String(), after.DailyLoss.String())
	assert.Equal(t, before.LastResetDate, after.LastResetDate)
}

func TestFailureRateTrip(t *testing.T) {
	store := &memStore{}
	cfg := testConfig()
	cfg.MaxDailyLoss = decimal.NewFromInt(100000)
	cfg.MaxConsecutiveLosses = 1000
	cfg.MaxFailureRate = 0.5
	cfg.FailureRateWindow = 10

	cb, err := NewCircuitBreaker(cfg, store)
	require.NoError(t, err)

	// alternate to keep the streak short, losses still dominate the window
	for i := 0; i < 4; i++ {
		cb.RecordResult(d(-1))
		cb.RecordResult(d(-1))
		cb.RecordResult(d(1))
	}

	assert.False(t, cb.MayTrade(), "2/3 loss rate over the window must trip")
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	store := &memStore{}
	cb := newTestBreaker(t, store)

	cb.RecordResult(d(-42.5))
	cb.RecordResult(d(-7))
	want := cb.GetState()

	// simulate process restart against the same store
	cb2, err := NewCircuitBreaker(testConfig(), store)
	require.NoError(t, err)
	got := cb2.GetState()

	assert.Equal(t, want.DailyLoss.String(), got.DailyLoss.String())
	assert.Equal(t, want.ConsecutiveLosses, got.ConsecutiveLosses)
	assert.Equal(t, want.LastResetDate, got.LastResetDate)
}

func TestEveryMutationPersisted(t *testing.T) {
	store := &memStore{}
	cb := newTestBreaker(t, store)

	before := store.saves
	cb.RecordResult(d(-1))
	cb.RecordResult(d(1))
	cb.ManualTrip("ops")
	cb.ManualReset()

	assert.GreaterOrEqual(t, store.saves-before, 4, "each mutation must write state")
}

func TestManualTripAndCallbacks(t *testing.T) {
	cb := newTestBreaker(t, &memStore{})

	var tripped, reset string
	cb.OnTrip(func(r string) { tripped = r })
	cb.OnReset(func(r string) { reset = r })

	cb.ManualTrip("suspicious fills")
	assert.False(t, cb.MayTrade())
	assert.NotEmpty(t, tripped)

	cb.ManualReset()
	assert.True(t, cb.MayTrade())
	assert.Equal(t, "manual reset", reset)
}
