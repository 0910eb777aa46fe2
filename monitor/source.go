package monitor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// WalletTrade is one decoded exchange trade made by a watched wallet
type WalletTrade struct {
	TxHash    string
	Wallet    string
	MarketID  string // condition id; may be empty on the on-chain fallback path
	TokenID   string
	Side      types.Side
	Size      decimal.Decimal
	Price     decimal.Decimal
	GasPrice  decimal.Decimal
	Block     uint64
	Timestamp time.Time // UTC
}

// TransactionSource fetches trades for a wallet above a block cursor.
// Implemented by the primary indexer API and the on-chain fallback.
type TransactionSource interface {
	GetTrades(ctx context.Context, wallet string, sinceBlock uint64) ([]WalletTrade, error)
	GetCurrentBlock(ctx context.Context) (uint64, error)
}

// MarketInfoProvider supplies market liquidity for confidence scoring
type MarketInfoProvider interface {
	GetMarketLiquidity(ctx context.Context, marketID string) (decimal.Decimal, error)
}
