package risk

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION SIZING - Replica size under three independent bounds
// ═══════════════════════════════════════════════════════════════════════════════
//
// size = min(balance * riskFraction,          risk-based
//            originalSize * proportionFraction, proportional
//            absolute max)
//
// The result is rounded half-up at a fixed number of fractional digits and
// must clear the configured minimum; if it cannot, the trade is rejected
// rather than silently oversized or undersized. Decimal throughout: repeated
// float rounding compounds into real money discrepancies.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SizerConfig bounds the replica size
type SizerConfig struct {
	RiskFraction       decimal.Decimal // fraction of account balance
	ProportionFraction decimal.Decimal // fraction of the original trade size
	MaxSize            decimal.Decimal // absolute ceiling
	MinSize            decimal.Decimal // below this the trade is rejected
	Digits             int32           // fractional digits (2 = USDC cents)
}

// Sizer computes replica position sizes
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a position sizer
func NewSizer(cfg SizerConfig) *Sizer {
	log.Info().
		Str("risk_fraction", cfg.RiskFraction.String()).
		Str("proportion_fraction", cfg.ProportionFraction.String()).
		Str("max_size", cfg.MaxSize.StringFixed(2)).
		Str("min_size", cfg.MinSize.StringFixed(2)).
		Msg("🛡️ Sizer initialized")
	return &Sizer{cfg: cfg}
}

// Calculate returns the replica size for a detected trade, or ok=false when
// no feasible size exists above the minimum.
func (s *Sizer) Calculate(balance, originalSize decimal.Decimal) (decimal.Decimal, bool) {
	riskBased := balance.Mul(s.cfg.RiskFraction)
	proportional := originalSize.Mul(s.cfg.ProportionFraction)

	size := decimal.Min(riskBased, decimal.Min(proportional, s.cfg.MaxSize))
	size = size.Round(s.cfg.Digits) // decimal.Round is half-up for positive values

	if size.LessThan(s.cfg.MinSize) {
		log.Debug().
			Str("risk_based", riskBased.StringFixed(2)).
			Str("proportional", proportional.StringFixed(2)).
			Str("max", s.cfg.MaxSize.StringFixed(2)).
			Str("min", s.cfg.MinSize.StringFixed(2)).
			Msg("Size below minimum, trade infeasible")
		return decimal.Zero, false
	}

	log.Debug().
		Str("balance", balance.StringFixed(2)).
		Str("original", originalSize.StringFixed(2)).
		Str("size", size.StringFixed(2)).
		Msg("Position sizing")

	return size, true
}
