package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/ratelimit"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// stubSource serves canned trades per wallet
type stubSource struct {
	mu     sync.Mutex
	trades map[string][]WalletTrade
	errs   map[string]error
	calls  map[string]int
}

func newStubSource() *stubSource {
	return &stubSource{
		trades: make(map[string][]WalletTrade),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (s *stubSource) GetTrades(_ context.Context, wallet string, sinceBlock uint64) ([]WalletTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[wallet]++
	if err := s.errs[wallet]; err != nil {
		return nil, err
	}

	var out []WalletTrade
	for _, t := range s.trades[wallet] {
		if t.Block > sinceBlock {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubSource) GetCurrentBlock(context.Context) (uint64, error) { return 100, nil }

// fixedScorer always returns the same confidence
type fixedScorer struct{ score float64 }

func (f fixedScorer) Score(WalletTrade, decimal.Decimal, decimal.Decimal) float64 { return f.score }

type stubMarkets struct{}

func (stubMarkets) GetMarketLiquidity(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(50000), nil
}

func fastLimiter() *ratelimit.AdaptiveLimiter {
	return ratelimit.New(ratelimit.Config{
		BaseDelay: time.Microsecond,
		MaxDelay:  time.Millisecond,
		Window:    time.Minute,
	})
}

func mkTrade(wallet, tx string, block uint64, age time.Duration) WalletTrade {
	return WalletTrade{
		TxHash:    tx,
		Wallet:    wallet,
		MarketID:  "cond-1",
		TokenID:   "tok-1",
		Side:      types.SideBuy,
		Size:      decimal.NewFromInt(50),
		Price:     decimal.NewFromFloat(0.42),
		Block:     block,
		Timestamp: time.Now().UTC().Add(-age),
	}
}

func newTestMonitor(src TransactionSource, fallback TransactionSource, wallets ...string) *Monitor {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.4
	cfg.FallbackAfter = 2
	return New(cfg, wallets, src, fallback, fastLimiter(), stubMarkets{}, fixedScorer{score: 0.9})
}

func TestEmitsSignalOnce(t *testing.T) {
	src := newStubSource()
	src.trades["w1"] = []WalletTrade{mkTrade("w1", "0xaaa", 10, time.Minute)}

	m := newTestMonitor(src, nil, "w1")
	defer m.Stop()

	signals := m.PollAll(context.Background())
	require.Len(t, signals, 1)
	assert.Equal(t, "0xaaa", signals[0].TxHash)
	assert.Equal(t, "cond-1_BUY_0xaaa", signals[0].PositionKey())

	// same trade again: deduped, not re-emitted
	signals = m.PollAll(context.Background())
	assert.Empty(t, signals)
}

func TestRejectedTradeStillDeduped(t *testing.T) {
	src := newStubSource()
	src.trades["w1"] = []WalletTrade{mkTrade("w1", "0xbbb", 10, time.Minute)}

	cfg := DefaultConfig()
	cfg.MinConfidence = 0.99 // everything rejected
	m := New(cfg, []string{"w1"}, src, nil, fastLimiter(), stubMarkets{}, fixedScorer{score: 0.5})
	defer m.Stop()

	signals := m.PollAll(context.Background())
	assert.Empty(t, signals)
	assert.True(t, m.seen.Seen("0xbbb"), "evaluated tx must enter the processed set even when dropped")
}

func TestReorgWindowDefersYoungTrades(t *testing.T) {
	src := newStubSource()
	src.trades["w1"] = []WalletTrade{
		mkTrade("w1", "0xold", 10, time.Minute),
		mkTrade("w1", "0xnew", 11, time.Second), // inside the 30s window
	}

	m := newTestMonitor(src, nil, "w1")
	defer m.Stop()

	signals := m.PollAll(context.Background())
	require.Len(t, signals, 1)
	assert.Equal(t, "0xold", signals[0].TxHash)
	assert.False(t, m.seen.Seen("0xnew"), "deferred trade must stay eligible for the next poll")

	// once mature, the deferred trade is emitted
	src.mu.Lock()
	src.trades["w1"][1].Timestamp = time.Now().UTC().Add(-time.Minute)
	src.mu.Unlock()

	signals = m.PollAll(context.Background())
	require.Len(t, signals, 1)
	assert.Equal(t, "0xnew", signals[0].TxHash)
}

func TestFailingWalletDoesNotBlockOthers(t *testing.T) {
	src := newStubSource()
	src.trades["good"] = []WalletTrade{mkTrade("good", "0xccc", 10, time.Minute)}
	src.errs["bad"] = errors.New("indexer exploded")

	m := newTestMonitor(src, nil, "good", "bad")
	defer m.Stop()

	signals := m.PollAll(context.Background())
	require.Len(t, signals, 1)
	assert.Equal(t, "good", signals[0].Wallet)
}

func TestFallbackAfterRepeatedFailures(t *testing.T) {
	primary := newStubSource()
	primary.errs["w1"] = errors.New("down")

	fallback := newStubSource()
	fallback.trades["w1"] = []WalletTrade{mkTrade("w1", "0xddd", 10, time.Minute)}

	m := newTestMonitor(primary, fallback, "w1")
	defer m.Stop()

	// two failing polls, then the fallback kicks in
	assert.Empty(t, m.PollAll(context.Background()))
	assert.Empty(t, m.PollAll(context.Background()))

	signals := m.PollAll(context.Background())
	require.Len(t, signals, 1)
	assert.Equal(t, "0xddd", signals[0].TxHash)
	assert.Zero(t, primary.calls["w1"]-2, "primary should not be hit while in fallback")
}

func TestCursorAdvancesMonotonically(t *testing.T) {
	src := newStubSource()
	src.trades["w1"] = []WalletTrade{
		mkTrade("w1", "0x1", 5, time.Minute),
		mkTrade("w1", "0x2", 7, time.Minute),
	}

	m := newTestMonitor(src, nil, "w1")
	defer m.Stop()

	m.PollAll(context.Background())

	m.mu.Lock()
	cursor := m.state["w1"].cursor
	m.mu.Unlock()
	assert.Equal(t, uint64(7), cursor)
}

func TestDedupWindowEviction(t *testing.T) {
	set := NewProcessedTxSet(30*time.Millisecond, 100)
	defer set.Stop()

	for i := 0; i < 10; i++ {
		set.Mark(fmt.Sprintf("0x%d", i))
	}
	require.Equal(t, 10, set.Len())

	time.Sleep(60 * time.Millisecond)
	for i := 0; i < 10; i++ {
		assert.False(t, set.Seen(fmt.Sprintf("0x%d", i)), "entries older than the window must be evicted")
	}
}
