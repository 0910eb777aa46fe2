package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/exchange"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/internal/retry"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/notify"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/positions"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/risk"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE EXECUTOR - Signal in, position out
// ═══════════════════════════════════════════════════════════════════════════════
//
// One signal, one pipeline: validate, clear the circuit breaker, size under
// the risk budget, place the order, book the position. Every stage reports a
// structured result so a deliberate skip is never confused with a broken
// exchange. The per-key lock covers the duplicate check through the insert,
// so concurrent copies of the same signal cannot double-book.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Exchange is the slice of the execution client the executor needs
type Exchange interface {
	PlaceOrder(ctx context.Context, tokenID string, side types.Side, quantity, price decimal.Decimal) (exchange.OrderResult, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// Gate decides whether trading is currently allowed
type Gate interface {
	MayTrade() bool
}

// Watcher subscribes a token to the live price feed
type Watcher interface {
	Watch(tokenID string)
}

// Archiver persists opened positions for the audit trail
type Archiver interface {
	SaveOpened(p types.Position) error
}

// Config tunes position exits set at entry time
type Config struct {
	StopLossPct   decimal.Decimal // fraction of entry price, e.g. 0.20
	TakeProfitPct decimal.Decimal // fraction of entry price, e.g. 0.30
}

// TradeExecutor turns accepted signals into booked positions
type TradeExecutor struct {
	cfg      Config
	exch     Exchange
	gate     Gate
	sizer    *risk.Sizer
	store    *positions.Store
	live     Watcher  // may be nil
	archive  Archiver // may be nil
	notifier notify.Notifier
}

// New creates a trade executor
func New(cfg Config, exch Exchange, gate Gate, sizer *risk.Sizer,
	store *positions.Store, live Watcher, archive Archiver, notifier notify.Notifier) *TradeExecutor {

	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &TradeExecutor{
		cfg:      cfg,
		exch:     exch,
		gate:     gate,
		sizer:    sizer,
		store:    store,
		live:     live,
		archive:  archive,
		notifier: notifier,
	}
}

// Execute processes one trade signal end to end
func (e *TradeExecutor) Execute(ctx context.Context, sig types.TradeSignal) types.ExecResult {
	if err := sig.Validate(); err != nil {
		return types.Rejected(fmt.Sprintf("invalid signal: %v", err))
	}

	if !e.gate.MayTrade() {
		log.Warn().Str("tx", sig.TxHash).Msg("🚫 Circuit breaker open, signal skipped")
		return types.Rejected("circuit breaker open")
	}

	key := sig.PositionKey()

	// hold the key lock across check-then-insert
	unlock := e.store.LockKey(key)
	defer unlock()

	if e.store.Has(key) {
		return types.Rejected("position already open for " + key)
	}

	var balance decimal.Decimal
	err := retry.Do(ctx, "balance", 3, func() error {
		var berr error
		balance, berr = e.exch.GetBalance(ctx)
		return berr
	})
	if err != nil {
		return types.Failed(fmt.Sprintf("balance fetch: %v", err))
	}

	size, ok := e.sizer.Calculate(balance, sig.Size)
	if !ok {
		log.Debug().
			Str("tx", sig.TxHash).
			Str("balance", balance.StringFixed(2)).
			Str("original", sig.Size.StringFixed(2)).
			Msg("Sized below minimum, skipping")
		return types.Rejected("computed size below minimum")
	}

	err = retry.Do(ctx, "open order", 3, func() error {
		_, perr := e.exch.PlaceOrder(ctx, sig.TokenID, sig.Side, size, sig.Price)
		return perr
	})
	if err != nil {
		e.notifier.Notify(notify.SeverityWarn,
			fmt.Sprintf("Order failed for %s %s: %v", sig.Side, sig.MarketID, err))
		return types.Failed(fmt.Sprintf("order placement: %v", err))
	}

	pos := types.Position{
		Key:          key,
		MarketID:     sig.MarketID,
		TokenID:      sig.TokenID,
		Side:         sig.Side,
		EntryPrice:   sig.Price,
		Size:         size,
		StopLoss:     e.stopLoss(sig.Side, sig.Price),
		TakeProfit:   e.takeProfit(sig.Side, sig.Price),
		OpenedAt:     time.Now().UTC(),
		Status:       types.StatusOpen,
		SourceTx:     sig.TxHash,
		SourceWallet: sig.Wallet,
	}

	if err := e.store.Insert(&pos); err != nil {
		// order is already placed; booking must not silently vanish
		log.Error().Err(err).Str("key", key).Msg("❌ Failed to book executed position")
		return types.Failed(fmt.Sprintf("booking: %v", err))
	}

	if e.live != nil {
		e.live.Watch(pos.TokenID)
	}
	if e.archive != nil {
		if aerr := e.archive.SaveOpened(pos); aerr != nil {
			log.Error().Err(aerr).Str("key", key).Msg("Failed to archive opened position")
		}
	}

	log.Info().
		Str("key", key).
		Str("side", string(sig.Side)).
		Str("entry", sig.Price.StringFixed(4)).
		Str("size", size.StringFixed(2)).
		Str("source_wallet", sig.Wallet).
		Msg("✅ Position opened")

	e.notifier.Notify(notify.SeverityInfo,
		fmt.Sprintf("Opened %s %s: %s @ %s (copying %s)",
			sig.Side, shortMarket(sig.MarketID), size.StringFixed(2),
			sig.Price.StringFixed(4), shortMarket(sig.Wallet)))

	return types.ExecResult{
		Status:   types.StatusExecuted,
		Size:     size,
		Position: &pos,
	}
}

// stopLoss computes the exit level that caps the loss on this side
func (e *TradeExecutor) stopLoss(side types.Side, entry decimal.Decimal) decimal.Decimal {
	if e.cfg.StopLossPct.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if side == types.SideBuy {
		return entry.Mul(decimal.NewFromInt(1).Sub(e.cfg.StopLossPct))
	}
	return entry.Mul(decimal.NewFromInt(1).Add(e.cfg.StopLossPct))
}

// takeProfit computes the exit level that locks the gain on this side
func (e *TradeExecutor) takeProfit(side types.Side, entry decimal.Decimal) decimal.Decimal {
	if e.cfg.TakeProfitPct.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if side == types.SideBuy {
		return entry.Mul(decimal.NewFromInt(1).Add(e.cfg.TakeProfitPct))
	}
	return entry.Mul(decimal.NewFromInt(1).Sub(e.cfg.TakeProfitPct))
}

func shortMarket(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
