package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/internal/retry"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// INDEXER CLIENT - Primary trade feed from the Polymarket data API
// ═══════════════════════════════════════════════════════════════════════════════

// IndexerClient reads wallet trade activity from the data API
type IndexerClient struct {
	baseURL    string
	httpClient *http.Client
	pageLimit  int
}

// NewIndexerClient creates a data-API client with a bounded request timeout
func NewIndexerClient(baseURL string, timeout time.Duration) *IndexerClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &IndexerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		pageLimit:  100,
	}
}

// apiTrade mirrors the data-API trade record
type apiTrade struct {
	TxHash      string          `json:"transactionHash"`
	Wallet      string          `json:"proxyWallet"`
	ConditionID string          `json:"conditionId"`
	Asset       string          `json:"asset"`
	Side        string          `json:"side"`
	Size        decimal.Decimal `json:"size"`
	Price       decimal.Decimal `json:"price"`
	GasPrice    decimal.Decimal `json:"gasPrice"`
	Block       uint64          `json:"blockNumber"`
	Timestamp   int64           `json:"timestamp"` // unix seconds
}

// GetTrades fetches trades for wallet strictly above sinceBlock, oldest first
func (c *IndexerClient) GetTrades(ctx context.Context, wallet string, sinceBlock uint64) ([]WalletTrade, error) {
	q := url.Values{}
	q.Set("user", wallet)
	q.Set("limit", fmt.Sprintf("%d", c.pageLimit))

	body, err := c.get(ctx, "/trades?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var raw []apiTrade
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}

	trades := make([]WalletTrade, 0, len(raw))
	for _, t := range raw {
		if t.Block <= sinceBlock {
			continue
		}
		trades = append(trades, WalletTrade{
			TxHash:    t.TxHash,
			Wallet:    t.Wallet,
			MarketID:  t.ConditionID,
			TokenID:   t.Asset,
			Side:      types.Side(t.Side),
			Size:      t.Size,
			Price:     t.Price,
			GasPrice:  t.GasPrice,
			Block:     t.Block,
			Timestamp: time.Unix(t.Timestamp, 0).UTC(),
		})
	}

	// API returns newest first; the monitor wants block order
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}

	return trades, nil
}

// GetCurrentBlock returns the indexer's view of chain head
func (c *IndexerClient) GetCurrentBlock(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "/block")
	if err != nil {
		return 0, err
	}

	var resp struct {
		Block uint64 `json:"block"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode block: %w", err)
	}
	return resp.Block, nil
}

func (c *IndexerClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.Transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient(err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retry.Transient(fmt.Errorf("indexer HTTP %d: %s", resp.StatusCode, body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("indexer HTTP %d: %s", resp.StatusCode, body)
	}

	return body, nil
}
