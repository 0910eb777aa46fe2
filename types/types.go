package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the known values
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the closing direction for a position opened on this side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// TradeSignal is an immutable record of a detected external trade.
// Created by the wallet monitor, consumed exactly once by the executor.
type TradeSignal struct {
	TxHash     string
	Wallet     string
	MarketID   string // Polymarket condition ID
	TokenID    string // Outcome token being traded
	Side       Side
	Size       decimal.Decimal // Original trade size (shares)
	Price      decimal.Decimal
	Confidence float64 // [0,1]
	Block      uint64
	Timestamp  time.Time // Always UTC
}

// PositionKey derives the unique key for the replica position.
// Including the source tx hash keeps two distinct trades on the same
// market/side from colliding.
func (s *TradeSignal) PositionKey() string {
	return fmt.Sprintf("%s_%s_%s", s.MarketID, s.Side, s.TxHash)
}

// Validate rejects malformed signals at construction time rather than
// letting bad fields surface mid-execution.
func (s *TradeSignal) Validate() error {
	if s.TxHash == "" {
		return fmt.Errorf("signal missing tx hash")
	}
	if s.Wallet == "" {
		return fmt.Errorf("signal missing wallet")
	}
	if s.MarketID == "" || s.TokenID == "" {
		return fmt.Errorf("signal missing market/token id")
	}
	if !s.Side.Valid() {
		return fmt.Errorf("invalid side %q", s.Side)
	}
	if s.Size.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("non-positive size %s", s.Size)
	}
	if s.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("non-positive price %s", s.Price)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range", s.Confidence)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("signal missing timestamp")
	}
	return nil
}

// PositionStatus is the lifecycle state of a replica position
type PositionStatus string

const (
	StatusOpen    PositionStatus = "OPEN"
	StatusClosing PositionStatus = "CLOSING"
	StatusClosed  PositionStatus = "CLOSED"
)

// Position represents a replica trade in flight. Owned exclusively by the
// position store; the key is immutable after creation.
type Position struct {
	Key          string
	MarketID     string
	TokenID      string
	Side         Side
	EntryPrice   decimal.Decimal
	Size         decimal.Decimal
	StopLoss     decimal.Decimal
	TakeProfit   decimal.Decimal
	OpenedAt     time.Time // UTC
	Status       PositionStatus
	SourceTx     string
	SourceWallet string
}

// UnrealizedPnL computes mark-to-market P&L at the given price
func (p *Position) UnrealizedPnL(current decimal.Decimal) decimal.Decimal {
	if p.Side == SideSell {
		return p.EntryPrice.Sub(current).Mul(p.Size)
	}
	return current.Sub(p.EntryPrice).Mul(p.Size)
}
