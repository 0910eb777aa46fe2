package monitor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/internal/retry"
	bottypes "github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAIN FALLBACK - Direct CTF Exchange log scan when the indexer is down
// ═══════════════════════════════════════════════════════════════════════════════
//
// Secondary path only: scans OrderFilled logs for a wallet over a narrow,
// bounded block window so a dead indexer never turns into an unbounded RPC
// bill. Condition ids are not present in the event, so fallback trades carry
// an empty MarketID and the monitor keys them by outcome token instead.
//
// ═══════════════════════════════════════════════════════════════════════════════

// CTFExchangeAddress is the Polymarket CTF Exchange on Polygon
const CTFExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

var orderFilledTopic = crypto.Keccak256Hash(
	[]byte("OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"),
)

// usdcUnits converts 6-decimal on-chain amounts
var usdcUnits = decimal.New(1, 6)

// ChainFallback reads fills straight from the exchange contract
type ChainFallback struct {
	ec       *ethclient.Client
	exchange common.Address
	maxSpan  uint64 // widest block window a single query may cover
}

// NewChainFallback dials the RPC endpoint
func NewChainFallback(rpcURL string, maxSpan uint64) (*ChainFallback, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	if maxSpan == 0 {
		maxSpan = 3000
	}

	log.Info().Str("rpc", rpcURL).Uint64("max_span", maxSpan).Msg("⛓️ Chain fallback ready")

	return &ChainFallback{
		ec:       ec,
		exchange: common.HexToAddress(CTFExchangeAddress),
		maxSpan:  maxSpan,
	}, nil
}

// GetCurrentBlock returns the chain head
func (c *ChainFallback) GetCurrentBlock(ctx context.Context) (uint64, error) {
	n, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, retry.Transient(fmt.Errorf("block number: %w", err))
	}
	return n, nil
}

// GetTrades scans OrderFilled logs where the wallet is the maker, clamped to
// the most recent maxSpan blocks above sinceBlock.
func (c *ChainFallback) GetTrades(ctx context.Context, wallet string, sinceBlock uint64) ([]WalletTrade, error) {
	head, err := c.GetCurrentBlock(ctx)
	if err != nil {
		return nil, err
	}

	from := sinceBlock + 1
	if head > c.maxSpan && from < head-c.maxSpan {
		from = head - c.maxSpan
	}
	if from > head {
		return nil, nil
	}

	maker := common.HexToAddress(wallet)
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{c.exchange},
		Topics: [][]common.Hash{
			{orderFilledTopic},
			nil, // order hash
			{common.BytesToHash(maker.Bytes())},
		},
	}

	logs, err := c.ec.FilterLogs(ctx, query)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("filter logs: %w", err))
	}

	blockTimes := make(map[uint64]time.Time)
	trades := make([]WalletTrade, 0, len(logs))
	for _, lg := range logs {
		trade, err := c.decodeFill(lg, wallet)
		if err != nil {
			log.Warn().Err(err).Str("tx", lg.TxHash.Hex()).Msg("Skipping undecodable fill")
			continue
		}

		ts, ok := blockTimes[lg.BlockNumber]
		if !ok {
			header, err := c.ec.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
			if err != nil {
				return nil, retry.Transient(fmt.Errorf("header %d: %w", lg.BlockNumber, err))
			}
			ts = time.Unix(int64(header.Time), 0).UTC()
			blockTimes[lg.BlockNumber] = ts
		}
		trade.Timestamp = ts

		trades = append(trades, trade)
	}

	return trades, nil
}

// decodeFill unpacks an OrderFilled log into a WalletTrade
func (c *ChainFallback) decodeFill(lg types.Log, wallet string) (WalletTrade, error) {
	// data layout: makerAssetId, takerAssetId, makerAmountFilled,
	// takerAmountFilled, fee; five 32-byte words
	if len(lg.Data) < 5*32 {
		return WalletTrade{}, fmt.Errorf("short data (%d bytes)", len(lg.Data))
	}

	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(lg.Data[i*32 : (i+1)*32])
	}
	makerAssetID := word(0)
	takerAssetID := word(1)
	makerAmount := decimal.NewFromBigInt(word(2), 0).Div(usdcUnits)
	takerAmount := decimal.NewFromBigInt(word(3), 0).Div(usdcUnits)

	if makerAmount.IsZero() || takerAmount.IsZero() {
		return WalletTrade{}, fmt.Errorf("zero fill amount")
	}

	trade := WalletTrade{
		TxHash: lg.TxHash.Hex(),
		Wallet: wallet,
		Block:  lg.BlockNumber,
	}

	if makerAssetID.Sign() == 0 {
		// maker paid collateral for outcome tokens
		trade.Side = bottypes.SideBuy
		trade.TokenID = takerAssetID.String()
		trade.Size = takerAmount
		trade.Price = makerAmount.Div(takerAmount)
	} else {
		trade.Side = bottypes.SideSell
		trade.TokenID = makerAssetID.String()
		trade.Size = makerAmount
		trade.Price = takerAmount.Div(makerAmount)
	}

	return trade, nil
}
