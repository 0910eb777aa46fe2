package monitor

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIDENCE SCORING - How "tradeable" is a detected trade?
// ═══════════════════════════════════════════════════════════════════════════════

// Scorer assigns a [0,1] confidence to a detected trade. The exact formula is
// a strategy decision, so it stays pluggable; inputs are the trade itself,
// the wallet's trailing average size, and market liquidity.
type Scorer interface {
	Score(t WalletTrade, avgSize, liquidity decimal.Decimal) float64
}

// DefaultScorer weighs three deterministic factors equally:
//   - size consistency against the wallet's trailing average
//   - gas price normality against a configured typical gas price
//   - market liquidity against a "deep enough" threshold
type DefaultScorer struct {
	TypicalGasPrice decimal.Decimal // wei; zero gas on a trade scores neutral
	DeepLiquidity   decimal.Decimal // dollars considered fully liquid
}

// NewDefaultScorer returns a scorer tuned for Polygon gas and Polymarket depth
func NewDefaultScorer() *DefaultScorer {
	return &DefaultScorer{
		TypicalGasPrice: decimal.New(40, 9), // 40 gwei
		DeepLiquidity:   decimal.NewFromInt(10000),
	}
}

// Score implements Scorer
func (s *DefaultScorer) Score(t WalletTrade, avgSize, liquidity decimal.Decimal) float64 {
	total := s.sizeConsistency(t.Size, avgSize) +
		s.gasNormality(t.GasPrice) +
		s.liquidityDepth(liquidity)
	return clamp01(total / 3)
}

// sizeConsistency is 1 when the trade matches the wallet's trailing average
// and falls toward 0 as it deviates. No history yet scores neutral.
func (s *DefaultScorer) sizeConsistency(size, avgSize decimal.Decimal) float64 {
	if avgSize.LessThanOrEqual(decimal.Zero) {
		return 0.5
	}
	deviation, _ := size.Sub(avgSize).Abs().Div(avgSize).Float64()
	return clamp01(1 - deviation)
}

// gasNormality penalizes trades paying far above typical gas, a sign of a
// bot racing a fleeting edge the replica will never catch.
func (s *DefaultScorer) gasNormality(gasPrice decimal.Decimal) float64 {
	if gasPrice.LessThanOrEqual(decimal.Zero) || s.TypicalGasPrice.LessThanOrEqual(decimal.Zero) {
		return 0.5
	}
	ratio, _ := gasPrice.Div(s.TypicalGasPrice).Float64()
	if ratio <= 1 {
		return 1
	}
	return clamp01(1 - (ratio-1)/4) // 5x typical gas scores 0
}

// liquidityDepth scales with market depth up to the deep-liquidity threshold
func (s *DefaultScorer) liquidityDepth(liquidity decimal.Decimal) float64 {
	if s.DeepLiquidity.LessThanOrEqual(decimal.Zero) {
		return 0.5
	}
	frac, _ := liquidity.Div(s.DeepLiquidity).Float64()
	return clamp01(frac)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
