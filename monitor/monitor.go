package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/cache"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/internal/retry"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/ratelimit"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// WALLET MONITOR - Detect trades by watched wallets, emit candidate signals
// ═══════════════════════════════════════════════════════════════════════════════
//
// Per wallet, per poll: fetch trades above the block cursor from the primary
// indexer (rate limited), falling back to a narrow on-chain log scan after
// repeated failures. Every fetched transaction is marked in the processed
// set at evaluation time, signal or not. Trades inside the reorg safety
// window are deferred to the next poll, not consumed.
//
// A failing wallet never blocks the others; polls aggregate partial results.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config tunes the monitor
type Config struct {
	MinConfidence float64
	ReorgWindow   time.Duration // defer trades younger than this
	DedupWindow   time.Duration // processed-tx retention
	FallbackAfter int           // consecutive primary failures before on-chain scan
	HistorySize   int           // trailing trade sizes kept per wallet
}

// DefaultConfig returns conservative monitor settings
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.4,
		ReorgWindow:   30 * time.Second,
		DedupWindow:   time.Hour,
		FallbackAfter: 3,
		HistorySize:   20,
	}
}

// walletState is per-wallet bookkeeping, guarded by the monitor mutex
type walletState struct {
	cursor      uint64
	failures    int
	recentSizes []decimal.Decimal
}

// Monitor watches a set of wallets and produces trade signals
type Monitor struct {
	mu      sync.Mutex
	cfg     Config
	wallets []string
	state   map[string]*walletState

	primary  TransactionSource
	fallback TransactionSource // may be nil
	limiter  *ratelimit.AdaptiveLimiter
	seen     *ProcessedTxSet
	scorer   Scorer

	markets   MarketInfoProvider
	liquidity *cache.Cache[string, decimal.Decimal]

	now func() time.Time
}

// New creates a wallet monitor
func New(cfg Config, wallets []string, primary, fallback TransactionSource,
	limiter *ratelimit.AdaptiveLimiter, markets MarketInfoProvider, scorer Scorer) *Monitor {

	state := make(map[string]*walletState, len(wallets))
	for _, w := range wallets {
		state[w] = &walletState{}
	}

	m := &Monitor{
		cfg:      cfg,
		wallets:  wallets,
		state:    state,
		primary:  primary,
		fallback: fallback,
		limiter:  limiter,
		seen:     NewProcessedTxSet(cfg.DedupWindow, 50000),
		scorer:   scorer,
		markets:  markets,
		liquidity: cache.New[string, decimal.Decimal]("market-liquidity", cache.Config{
			MaxEntries:      2000,
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
		}),
		now: time.Now,
	}

	log.Info().
		Int("wallets", len(wallets)).
		Float64("min_confidence", cfg.MinConfidence).
		Dur("reorg_window", cfg.ReorgWindow).
		Dur("dedup_window", cfg.DedupWindow).
		Msg("👀 Wallet monitor initialized")

	return m
}

// Run polls on a fixed interval and pushes signals to out until ctx ends
func (m *Monitor) Run(ctx context.Context, interval time.Duration, out chan<- types.TradeSignal) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Wallet monitor stopped")
			return
		case <-ticker.C:
			for _, sig := range m.PollAll(ctx) {
				select {
				case out <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// PollAll fetches every wallet concurrently and aggregates partial results
func (m *Monitor) PollAll(ctx context.Context) []types.TradeSignal {
	results := make([][]types.TradeSignal, len(m.wallets))

	var wg sync.WaitGroup
	for i, wallet := range m.wallets {
		wg.Add(1)
		go func(i int, wallet string) {
			defer wg.Done()

			signals, err := m.pollWallet(ctx, wallet)
			if err != nil {
				log.Warn().Err(err).Str("wallet", wallet).Msg("⚠️ Wallet poll failed")
				return
			}
			results[i] = signals
		}(i, wallet)
	}
	wg.Wait()

	var all []types.TradeSignal
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// pollWallet fetches and evaluates new trades for one wallet
func (m *Monitor) pollWallet(ctx context.Context, wallet string) ([]types.TradeSignal, error) {
	if err := m.limiter.AwaitSlot(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	ws := m.state[wallet]
	cursor := ws.cursor
	useFallback := m.fallback != nil && ws.failures >= m.cfg.FallbackAfter
	m.mu.Unlock()

	source := m.primary
	sourceName := "indexer"
	if useFallback {
		source = m.fallback
		sourceName = "chain-fallback"
	}

	var trades []WalletTrade
	err := retry.Do(ctx, sourceName+" trades", 3, func() error {
		var ferr error
		trades, ferr = source.GetTrades(ctx, wallet, cursor)
		return ferr
	})
	if err != nil {
		m.limiter.OnFailure()
		m.mu.Lock()
		ws.failures++
		m.mu.Unlock()
		return nil, err
	}

	m.limiter.OnSuccess()
	m.mu.Lock()
	ws.failures = 0
	m.mu.Unlock()

	sort.Slice(trades, func(i, j int) bool { return trades[i].Block < trades[j].Block })

	var signals []types.TradeSignal
	for _, t := range trades {
		// defer anything a reorg could still rewrite; both sides of the
		// comparison are UTC
		if m.now().UTC().Sub(t.Timestamp) < m.cfg.ReorgWindow {
			log.Debug().Str("tx", t.TxHash).Msg("Deferring trade inside reorg window")
			break // trades are block-ordered, everything after is younger
		}

		if m.seen.Seen(t.TxHash) {
			m.advanceCursor(wallet, t.Block)
			continue
		}
		// mark at evaluation time regardless of outcome
		m.seen.Mark(t.TxHash)
		m.advanceCursor(wallet, t.Block)

		sig, ok := m.evaluate(ctx, t)
		if ok {
			signals = append(signals, sig)
		}
	}

	return signals, nil
}

// evaluate scores one trade and builds a signal if it clears the bar
func (m *Monitor) evaluate(ctx context.Context, t WalletTrade) (types.TradeSignal, bool) {
	marketID := t.MarketID
	if marketID == "" {
		// fallback-path fills carry no condition id
		marketID = "token:" + t.TokenID
	}

	avg := m.trailingAvg(t.Wallet)
	liq := m.marketLiquidity(ctx, marketID)
	score := m.scorer.Score(t, avg, liq)

	m.recordSize(t.Wallet, t.Size)

	if score < m.cfg.MinConfidence {
		log.Debug().
			Str("tx", t.TxHash).
			Str("wallet", t.Wallet).
			Float64("confidence", score).
			Msg("Signal below confidence threshold")
		return types.TradeSignal{}, false
	}

	sig := types.TradeSignal{
		TxHash:     t.TxHash,
		Wallet:     t.Wallet,
		MarketID:   marketID,
		TokenID:    t.TokenID,
		Side:       t.Side,
		Size:       t.Size,
		Price:      t.Price,
		Confidence: score,
		Block:      t.Block,
		Timestamp:  t.Timestamp,
	}
	if err := sig.Validate(); err != nil {
		log.Warn().Err(err).Str("tx", t.TxHash).Msg("Dropping malformed trade")
		return types.TradeSignal{}, false
	}

	log.Info().
		Str("tx", t.TxHash).
		Str("wallet", t.Wallet).
		Str("market", marketID).
		Str("side", string(t.Side)).
		Str("size", t.Size.StringFixed(2)).
		Float64("confidence", score).
		Msg("📡 Trade signal detected")

	return sig, true
}

// marketLiquidity fetches liquidity through the bounded cache
func (m *Monitor) marketLiquidity(ctx context.Context, marketID string) decimal.Decimal {
	if liq, ok := m.liquidity.Get(marketID); ok {
		return liq
	}
	if m.markets == nil {
		return decimal.Zero
	}

	liq, err := m.markets.GetMarketLiquidity(ctx, marketID)
	if err != nil {
		log.Debug().Err(err).Str("market", marketID).Msg("Liquidity lookup failed")
		return decimal.Zero
	}
	m.liquidity.Set(marketID, liq)
	return liq
}

func (m *Monitor) advanceCursor(wallet string, block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws := m.state[wallet]; ws != nil && block > ws.cursor {
		ws.cursor = block
	}
}

func (m *Monitor) trailingAvg(wallet string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := m.state[wallet]
	if ws == nil || len(ws.recentSizes) == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, s := range ws.recentSizes {
		sum = sum.Add(s)
	}
	return sum.Div(decimal.NewFromInt(int64(len(ws.recentSizes))))
}

func (m *Monitor) recordSize(wallet string, size decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := m.state[wallet]
	if ws == nil {
		return
	}
	ws.recentSizes = append(ws.recentSizes, size)
	if n := m.cfg.HistorySize; n > 0 && len(ws.recentSizes) > n {
		ws.recentSizes = ws.recentSizes[len(ws.recentSizes)-n:]
	}
}

// Stop releases monitor-owned resources
func (m *Monitor) Stop() {
	m.seen.Stop()
	m.liquidity.Stop()
}
