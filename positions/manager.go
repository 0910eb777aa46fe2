package positions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/exchange"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/internal/retry"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/notify"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION MANAGER - Exit loop
// ═══════════════════════════════════════════════════════════════════════════════
//
// On every check interval: batch-fetch current prices for all open positions,
// preferring the live WebSocket cache over REST, then close anything that hit
// its stop loss, take profit, or maximum hold time. Realized P&L feeds the
// circuit breaker so exits count toward the daily risk budget.
//
// A close that fails stays OPEN and is retried on the next pass.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Exit reasons reported on close
const (
	ExitStopLoss   = "STOP_LOSS"
	ExitTakeProfit = "TAKE_PROFIT"
	ExitMaxHold    = "MAX_HOLD"
)

// Exchange is the slice of the execution client the manager needs
type Exchange interface {
	PlaceOrder(ctx context.Context, tokenID string, side types.Side, quantity, price decimal.Decimal) (exchange.OrderResult, error)
	GetPricesBatch(ctx context.Context, tokenIDs []string) (map[string]decimal.Decimal, error)
}

// LivePrices is the WebSocket price cache, consulted before REST
type LivePrices interface {
	Price(tokenID string) (decimal.Decimal, bool)
	Unwatch(tokenID string)
}

// ResultRecorder receives realized P&L, wired to the circuit breaker
type ResultRecorder interface {
	RecordResult(pnl decimal.Decimal)
}

// Archiver persists closed positions for the audit trail
type Archiver interface {
	MarkClosed(key string, exitPrice, pnl decimal.Decimal, reason string) error
}

// ManagerConfig tunes the exit loop
type ManagerConfig struct {
	CheckInterval time.Duration
	MaxHold       time.Duration // 0 disables the time-based exit
}

// Manager runs the exit loop over the position store
type Manager struct {
	cfg      ManagerConfig
	store    *Store
	exch     Exchange
	live     LivePrices // may be nil
	breaker  ResultRecorder
	notifier notify.Notifier
	archive  Archiver // may be nil

	now func() time.Time
}

// NewManager creates a position manager
func NewManager(cfg ManagerConfig, store *Store, exch Exchange, live LivePrices,
	breaker ResultRecorder, notifier notify.Notifier, archive Archiver) *Manager {

	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &Manager{
		cfg:      cfg,
		store:    store,
		exch:     exch,
		live:     live,
		breaker:  breaker,
		notifier: notifier,
		archive:  archive,
		now:      time.Now,
	}
}

// Run checks exits on a fixed interval until ctx ends
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", m.cfg.CheckInterval).
		Dur("max_hold", m.cfg.MaxHold).
		Msg("📈 Position manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Position manager stopped")
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll evaluates every open position once
func (m *Manager) CheckAll(ctx context.Context) {
	open := m.store.List()
	if len(open) == 0 {
		return
	}

	prices := m.fetchPrices(ctx, open)

	for _, pos := range open {
		if pos.Status != types.StatusOpen {
			continue
		}

		price, ok := prices[pos.TokenID]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			log.Debug().Str("key", pos.Key).Msg("No price for position, skipping check")
			continue
		}

		reason, exit := m.CheckExit(&pos, price)
		if !exit {
			continue
		}

		if err := m.Close(ctx, pos.Key, price, reason); err != nil {
			log.Warn().Err(err).Str("key", pos.Key).Msg("⚠️ Close failed, will retry next pass")
		}
	}
}

// fetchPrices resolves a price per token, live cache first, then one REST batch
func (m *Manager) fetchPrices(ctx context.Context, open []types.Position) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(open))

	var missing []string
	for _, pos := range open {
		if _, done := prices[pos.TokenID]; done {
			continue
		}
		if m.live != nil {
			if p, ok := m.live.Price(pos.TokenID); ok {
				prices[pos.TokenID] = p
				continue
			}
		}
		missing = append(missing, pos.TokenID)
	}

	if len(missing) == 0 {
		return prices
	}

	var fetched map[string]decimal.Decimal
	err := retry.Do(ctx, "price batch", 3, func() error {
		var ferr error
		fetched, ferr = m.exch.GetPricesBatch(ctx, missing)
		return ferr
	})
	if err != nil {
		log.Warn().Err(err).Int("tokens", len(missing)).Msg("⚠️ Price batch failed")
		return prices
	}

	for id, p := range fetched {
		prices[id] = p
	}
	return prices
}

// CheckExit decides whether a position should close at the given price
func (m *Manager) CheckExit(p *types.Position, price decimal.Decimal) (string, bool) {
	if p.Side == types.SideBuy {
		if p.StopLoss.GreaterThan(decimal.Zero) && price.LessThanOrEqual(p.StopLoss) {
			return ExitStopLoss, true
		}
		if p.TakeProfit.GreaterThan(decimal.Zero) && price.GreaterThanOrEqual(p.TakeProfit) {
			return ExitTakeProfit, true
		}
	} else {
		// short exposure: losses run upward
		if p.StopLoss.GreaterThan(decimal.Zero) && price.GreaterThanOrEqual(p.StopLoss) {
			return ExitStopLoss, true
		}
		if p.TakeProfit.GreaterThan(decimal.Zero) && price.LessThanOrEqual(p.TakeProfit) {
			return ExitTakeProfit, true
		}
	}

	if m.cfg.MaxHold > 0 && m.now().UTC().Sub(p.OpenedAt) >= m.cfg.MaxHold {
		return ExitMaxHold, true
	}

	return "", false
}

// Close exits one position at the given price for the given reason
func (m *Manager) Close(ctx context.Context, key string, price decimal.Decimal, reason string) error {
	unlock := m.store.LockKey(key)
	defer unlock()

	pos, ok := m.store.Get(key)
	if !ok {
		return fmt.Errorf("position %s no longer booked", key)
	}
	if pos.Status != types.StatusOpen {
		return nil
	}

	m.store.SetStatus(key, types.StatusClosing)

	err := retry.Do(ctx, "close order", 3, func() error {
		_, perr := m.exch.PlaceOrder(ctx, pos.TokenID, pos.Side.Opposite(), pos.Size, price)
		return perr
	})
	if err != nil {
		m.store.SetStatus(key, types.StatusOpen)
		return fmt.Errorf("close order for %s: %w", key, err)
	}

	pnl := pos.UnrealizedPnL(price)
	m.store.RecordClose(key, pnl)

	if m.breaker != nil {
		m.breaker.RecordResult(pnl)
	}
	if m.live != nil {
		m.live.Unwatch(pos.TokenID)
	}
	if m.archive != nil {
		if aerr := m.archive.MarkClosed(key, price, pnl, reason); aerr != nil {
			log.Error().Err(aerr).Str("key", key).Msg("Failed to archive closed position")
		}
	}

	emoji := "💰"
	severity := notify.SeverityInfo
	if pnl.IsNegative() {
		emoji = "🛑"
		severity = notify.SeverityWarn
	}
	log.Info().
		Str("key", key).
		Str("reason", reason).
		Str("exit_price", price.StringFixed(4)).
		Str("pnl", pnl.StringFixed(2)).
		Msgf("%s Position closed", emoji)

	m.notifier.Notify(severity, fmt.Sprintf("%s %s closed (%s): P&L %s",
		pos.Side, shortMarket(pos.MarketID), reason, pnl.StringFixed(2)))

	return nil
}

func shortMarket(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
