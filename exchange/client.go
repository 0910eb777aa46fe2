package exchange

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/internal/retry"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POLYMARKET EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Order placement and market data against the Polymarket CLOB API.
// Rate-limit and 5xx responses come back marked transient so the shared
// retry helper can tell them apart from rejections.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds client settings
type Config struct {
	CLOBURL    string
	GammaURL   string
	APIKey     string
	APISecret  string
	Passphrase string
	PrivateKey string // hex, optional in dry run
	DryRun     bool
	Timeout    time.Duration
}

// OrderResult is the exchange's answer to a placed order
type OrderResult struct {
	OrderID string
	Status  string
}

// MarketInfo describes a tradeable market
type MarketInfo struct {
	ConditionID string
	Question    string
	Liquidity   decimal.Decimal
	Active      bool
}

// Client talks to the CLOB and Gamma APIs
type Client struct {
	cfg        Config
	privateKey *ecdsa.PrivateKey
	address    string
	httpClient *http.Client
}

// NewClient creates an execution client
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}

	if cfg.PrivateKey != "" {
		pk, err := crypto.HexToECDSA(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.privateKey = pk
		c.address = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}

	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY RUN"
	}
	log.Info().
		Str("mode", mode).
		Str("address", c.address).
		Msg("🚀 Execution client initialized")

	return c, nil
}

// PlaceOrder places a limit order for an outcome token
func (c *Client) PlaceOrder(ctx context.Context, tokenID string, side types.Side, quantity, price decimal.Decimal) (OrderResult, error) {
	if c.cfg.DryRun {
		orderID := fmt.Sprintf("DRY_%d", time.Now().UnixNano())
		log.Info().
			Str("order_id", orderID).
			Str("token", shortID(tokenID)).
			Str("side", string(side)).
			Str("price", price.StringFixed(4)).
			Str("size", quantity.StringFixed(2)).
			Msg("📝 DRY RUN: Order would be placed")
		return OrderResult{OrderID: orderID, Status: "matched"}, nil
	}

	order := map[string]interface{}{
		"tokenID":    tokenID,
		"price":      price.String(),
		"size":       quantity.String(),
		"side":       string(side),
		"expiration": time.Now().Add(time.Minute).Unix(),
		"nonce":      time.Now().UnixNano(),
		"feeRateBps": "0",
	}

	signature, err := c.signOrder(order)
	if err != nil {
		return OrderResult{}, fmt.Errorf("signing failed: %w", err)
	}
	order["signature"] = signature

	body, err := c.post(ctx, c.cfg.CLOBURL, "/order", order)
	if err != nil {
		return OrderResult{}, err
	}

	var result struct {
		OrderID string `json:"orderID"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return OrderResult{}, fmt.Errorf("parse order response: %w", err)
	}
	if result.Error != "" {
		return OrderResult{}, fmt.Errorf("order rejected: %s", result.Error)
	}

	log.Info().
		Str("order_id", result.OrderID).
		Str("status", result.Status).
		Msg("✅ Order placed")

	return OrderResult{OrderID: result.OrderID, Status: result.Status}, nil
}

// GetBalance returns the available USDC balance
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	if c.cfg.DryRun {
		return decimal.NewFromInt(10000), nil
	}

	body, err := c.get(ctx, c.cfg.CLOBURL, "/balance-allowance?asset_type=COLLATERAL")
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	// balance is reported in 6-decimal USDC units
	return result.Balance.Div(decimal.New(1, 6)), nil
}

// GetCurrentPrice returns the midpoint price for a token
func (c *Client) GetCurrentPrice(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	body, err := c.get(ctx, c.cfg.CLOBURL, "/midpoint?token_id="+tokenID)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Mid decimal.Decimal `json:"mid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("parse midpoint: %w", err)
	}
	return result.Mid, nil
}

// GetPricesBatch returns midpoints for many tokens in one call
func (c *Client) GetPricesBatch(ctx context.Context, tokenIDs []string) (map[string]decimal.Decimal, error) {
	if len(tokenIDs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	payload := make([]map[string]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		payload = append(payload, map[string]string{"token_id": id})
	}

	body, err := c.post(ctx, c.cfg.CLOBURL, "/midpoints", payload)
	if err != nil {
		return nil, err
	}

	var raw map[string]decimal.Decimal
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse midpoints: %w", err)
	}
	return raw, nil
}

// GetMarket looks up a market by condition id via the Gamma API
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*MarketInfo, bool, error) {
	body, err := c.get(ctx, c.cfg.GammaURL, "/markets?condition_ids="+conditionID)
	if err != nil {
		return nil, false, err
	}

	var raw []struct {
		ConditionID string          `json:"conditionId"`
		Question    string          `json:"question"`
		Liquidity   decimal.Decimal `json:"liquidityNum"`
		Active      bool            `json:"active"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, fmt.Errorf("parse market: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	m := raw[0]
	return &MarketInfo{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Liquidity:   m.Liquidity,
		Active:      m.Active,
	}, true, nil
}

// GetMarketLiquidity satisfies the monitor's market info interface
func (c *Client) GetMarketLiquidity(ctx context.Context, marketID string) (decimal.Decimal, error) {
	info, found, err := c.GetMarket(ctx, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, nil
	}
	return info.Liquidity, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) get(ctx context.Context, base, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	return c.doRequest(req)
}

func (c *Client) post(ctx context.Context, base, path string, payload interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.doRequest(req)
}

func (c *Client) addHeaders(req *http.Request) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	req.Header.Set("POLY_API_KEY", c.cfg.APIKey)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.cfg.Passphrase)

	if c.cfg.APISecret != "" {
		message := timestamp + req.Method + req.URL.Path
		req.Header.Set("POLY_SIGNATURE", c.hmacSign(message))
	}
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
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
		return nil, retry.Transient(fmt.Errorf("HTTP %d: %s", resp.StatusCode, body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNING
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) signOrder(order map[string]interface{}) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("private key not loaded")
	}

	orderBytes, err := json.Marshal(order)
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256(orderBytes)

	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (c *Client) hmacSign(message string) string {
	hash := crypto.Keccak256([]byte(message + c.cfg.APISecret))
	return hexutil.Encode(hash)
}

func shortID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
