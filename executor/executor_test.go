package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/exchange"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/positions"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/risk"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// stubExchange serves a fixed balance and records orders
type stubExchange struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	orderErr error
	orders   int
}

func (s *stubExchange) PlaceOrder(_ context.Context, _ string, _ types.Side, _, _ decimal.Decimal) (exchange.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderErr != nil {
		return exchange.OrderResult{}, s.orderErr
	}
	s.orders++
	return exchange.OrderResult{OrderID: "stub", Status: "matched"}, nil
}

func (s *stubExchange) GetBalance(context.Context) (decimal.Decimal, error) {
	return s.balance, nil
}

type stubGate struct{ allow bool }

func (g stubGate) MayTrade() bool { return g.allow }

func mkSignal(tx string) types.TradeSignal {
	return types.TradeSignal{
		TxHash:     tx,
		Wallet:     "0xwallet",
		MarketID:   "cond-1",
		TokenID:    "tok-1",
		Side:       types.SideBuy,
		Size:       decimal.NewFromInt(50),
		Price:      decimal.NewFromFloat(0.40),
		Confidence: 0.8,
		Block:      10,
		Timestamp:  time.Now().UTC(),
	}
}

func newTestExecutor(exch Exchange, gate Gate, store *positions.Store) *TradeExecutor {
	sizer := risk.NewSizer(risk.SizerConfig{
		RiskFraction:       decimal.NewFromFloat(0.01),
		ProportionFraction: decimal.NewFromFloat(0.10),
		MaxSize:            decimal.NewFromInt(500),
		MinSize:            decimal.NewFromInt(1),
		Digits:             2,
	})
	return New(Config{
		StopLossPct:   decimal.NewFromFloat(0.20),
		TakeProfitPct: decimal.NewFromFloat(0.30),
	}, exch, gate, sizer, store, nil, nil, nil)
}

func TestExecuteOpensPosition(t *testing.T) {
	exch := &stubExchange{balance: decimal.NewFromInt(10000)}
	store := positions.NewStore()
	e := newTestExecutor(exch, stubGate{allow: true}, store)

	res := e.Execute(context.Background(), mkSignal("0xaaa"))

	require.Equal(t, types.StatusExecuted, res.Status, res.Reason)
	require.NotNil(t, res.Position)

	// min(10000*1%, 50*10%, 500) = 5 shares
	assert.True(t, res.Size.Equal(decimal.NewFromInt(5)), "got %s", res.Size)
	assert.Equal(t, "cond-1_BUY_0xaaa", res.Position.Key)
	assert.True(t, res.Position.StopLoss.Equal(decimal.NewFromFloat(0.32)))
	assert.True(t, res.Position.TakeProfit.Equal(decimal.NewFromFloat(0.52)))
	assert.Equal(t, 1, store.Len())
}

func TestBreakerOpenRejects(t *testing.T) {
	exch := &stubExchange{balance: decimal.NewFromInt(10000)}
	store := positions.NewStore()
	e := newTestExecutor(exch, stubGate{allow: false}, store)

	res := e.Execute(context.Background(), mkSignal("0xaaa"))

	assert.Equal(t, types.StatusRejected, res.Status)
	assert.Contains(t, res.Reason, "circuit breaker")
	assert.Zero(t, exch.orders, "no order placed while breaker is open")
	assert.Equal(t, 0, store.Len())
}

func TestDuplicateSignalRejected(t *testing.T) {
	exch := &stubExchange{balance: decimal.NewFromInt(10000)}
	store := positions.NewStore()
	e := newTestExecutor(exch, stubGate{allow: true}, store)

	first := e.Execute(context.Background(), mkSignal("0xaaa"))
	require.Equal(t, types.StatusExecuted, first.Status)

	second := e.Execute(context.Background(), mkSignal("0xaaa"))
	assert.Equal(t, types.StatusRejected, second.Status)
	assert.Equal(t, 1, exch.orders)
	assert.Equal(t, 1, store.Len())
}

func TestDistinctTxSameMarketSideBothExecute(t *testing.T) {
	exch := &stubExchange{balance: decimal.NewFromInt(10000)}
	store := positions.NewStore()
	e := newTestExecutor(exch, stubGate{allow: true}, store)

	// the same wallet trading the same market twice is two positions
	first := e.Execute(context.Background(), mkSignal("0xaaa"))
	second := e.Execute(context.Background(), mkSignal("0xbbb"))

	require.Equal(t, types.StatusExecuted, first.Status)
	require.Equal(t, types.StatusExecuted, second.Status)
	assert.NotEqual(t, first.Position.Key, second.Position.Key)
	assert.Equal(t, 2, store.Len())
}

func TestSizeBelowMinimumRejected(t *testing.T) {
	// 10% of a 4-share trade is 0.4, under the 1-share floor
	exch := &stubExchange{balance: decimal.NewFromInt(10000)}
	store := positions.NewStore()
	e := newTestExecutor(exch, stubGate{allow: true}, store)

	sig := mkSignal("0xaaa")
	sig.Size = decimal.NewFromInt(4)

	res := e.Execute(context.Background(), sig)
	assert.Equal(t, types.StatusRejected, res.Status)
	assert.Zero(t, exch.orders)
}

func TestOrderFailureReturnsFailed(t *testing.T) {
	exch := &stubExchange{
		balance:  decimal.NewFromInt(10000),
		orderErr: errors.New("order rejected: insufficient allowance"),
	}
	store := positions.NewStore()
	e := newTestExecutor(exch, stubGate{allow: true}, store)

	res := e.Execute(context.Background(), mkSignal("0xaaa"))

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, 0, store.Len(), "failed order must not be booked")
}

func TestInvalidSignalRejected(t *testing.T) {
	exch := &stubExchange{balance: decimal.NewFromInt(10000)}
	store := positions.NewStore()
	e := newTestExecutor(exch, stubGate{allow: true}, store)

	sig := mkSignal("0xaaa")
	sig.Side = "HOLD"

	res := e.Execute(context.Background(), sig)
	assert.Equal(t, types.StatusRejected, res.Status)
	assert.Contains(t, res.Reason, "invalid signal")
}

func TestSellSideExitLevels(t *testing.T) {
	exch := &stubExchange{balance: decimal.NewFromInt(10000)}
	store := positions.NewStore()
	e := newTestExecutor(exch, stubGate{allow: true}, store)

	sig := mkSignal("0xaaa")
	sig.Side = types.SideSell

	res := e.Execute(context.Background(), sig)
	require.Equal(t, types.StatusExecuted, res.Status)

	// short exposure: stop above entry, target below
	assert.True(t, res.Position.StopLoss.Equal(decimal.NewFromFloat(0.48)), "got %s", res.Position.StopLoss)
	assert.True(t, res.Position.TakeProfit.Equal(decimal.NewFromFloat(0.28)), "got %s", res.Position.TakeProfit)
}
