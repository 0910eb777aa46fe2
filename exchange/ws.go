package exchange

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/cache"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POLYMARKET WEBSOCKET PRICE FEED
// ═══════════════════════════════════════════════════════════════════════════════
//
// Live price updates for subscribed outcome tokens. Prices land in a bounded
// cache so exit checks can read a fresh midpoint without an extra REST call.
// The feed is best effort: on any read error it reconnects and resubscribes.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	DefaultWSURL   = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
	priceTTL       = 30 * time.Second
)

// PriceFeed maintains the WebSocket connection and the live price cache
type PriceFeed struct {
	mu sync.RWMutex

	wsURL     string
	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	// token ids to resubscribe after reconnect
	tokens map[string]struct{}

	prices *cache.Cache[string, decimal.Decimal]
}

// NewPriceFeed creates a feed; pass "" to use the default endpoint
func NewPriceFeed(wsURL string) *PriceFeed {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &PriceFeed{
		wsURL:  wsURL,
		stopCh: make(chan struct{}),
		tokens: make(map[string]struct{}),
		prices: cache.New[string, decimal.Decimal]("ws-prices", cache.Config{
			MaxEntries:      5000,
			TTL:             priceTTL,
			CleanupInterval: priceTTL,
		}),
	}
}

// Start connects and begins processing
func (f *PriceFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Msg("📡 Price feed started")
}

// Stop closes the connection and the price cache
func (f *PriceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}

	f.running = false
	close(f.stopCh)

	if f.conn != nil {
		f.conn.Close()
	}
	f.prices.Stop()

	log.Info().Msg("Price feed stopped")
}

// Watch subscribes to price updates for a token
func (f *PriceFeed) Watch(tokenID string) {
	f.mu.Lock()
	f.tokens[tokenID] = struct{}{}
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		f.subscribe(conn, []string{tokenID})
	}
}

// Unwatch drops the subscription bookkeeping for a token
func (f *PriceFeed) Unwatch(tokenID string) {
	f.mu.Lock()
	delete(f.tokens, tokenID)
	f.mu.Unlock()
}

// Price returns the cached live price for a token, if fresh
func (f *PriceFeed) Price(tokenID string) (decimal.Decimal, bool) {
	return f.prices.Get(tokenID)
}

// connectionLoop maintains the WebSocket connection
func (f *PriceFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Error().Err(err).Msg("WebSocket connection failed, retrying...")
			time.Sleep(reconnectDelay)
			continue
		}

		f.readLoop()
		time.Sleep(reconnectDelay)
	}
}

// connect establishes the connection and resubscribes watched tokens
func (f *PriceFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	tokens := make([]string, 0, len(f.tokens))
	for id := range f.tokens {
		tokens = append(tokens, id)
	}
	f.mu.Unlock()

	log.Info().Int("tokens", len(tokens)).Msg("🔌 WebSocket connected")

	if len(tokens) > 0 {
		if err := f.subscribe(conn, tokens); err != nil {
			log.Warn().Err(err).Msg("Resubscribe failed")
		}
	}

	go f.pingLoop()
	return nil
}

func (f *PriceFeed) subscribe(conn *websocket.Conn, tokenIDs []string) error {
	msg := map[string]interface{}{
		"type":       "subscribe",
		"channel":    "market",
		"assets_ids": tokenIDs,
	}
	return conn.WriteJSON(msg)
}

// pingLoop keeps the connection alive
func (f *PriceFeed) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			connected := f.connected
			f.mu.RUnlock()

			if connected && conn != nil {
				conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// readLoop reads messages until the connection drops
func (f *PriceFeed) readLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket read error")
			f.mu.Lock()
			f.connected = false
			f.mu.Unlock()
			return
		}

		f.processMessage(message)
	}
}

type wsMessage struct {
	EventType string `json:"event_type"`
	Asset     string `json:"asset_id"`
	Price     string `json:"price"`
	Bids      []struct {
		Price string `json:"price"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
	} `json:"asks"`
}

// processMessage extracts prices from book and trade events
func (f *PriceFeed) processMessage(data []byte) {
	var msgs []wsMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		msgs = []wsMessage{msg}
	}

	for _, msg := range msgs {
		switch msg.EventType {
		case "book":
			f.handleBook(msg)
		case "price_change", "last_trade_price":
			f.handlePrice(msg)
		}
	}
}

// handleBook caches the midpoint of the top of book
func (f *PriceFeed) handleBook(msg wsMessage) {
	if len(msg.Bids) == 0 || len(msg.Asks) == 0 {
		return
	}

	bid, err1 := decimal.NewFromString(msg.Bids[len(msg.Bids)-1].Price)
	ask, err2 := decimal.NewFromString(msg.Asks[len(msg.Asks)-1].Price)
	if err1 != nil || err2 != nil {
		return
	}

	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	f.prices.Set(msg.Asset, mid)
}

// handlePrice caches a direct price event
func (f *PriceFeed) handlePrice(msg wsMessage) {
	price, err := decimal.NewFromString(msg.Price)
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		return
	}
	f.prices.Set(msg.Asset, price)
}
