package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Alerts & operator control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Outbound alerts are fire and forget: a failed send is logged and dropped,
// never surfaced to the trading path. Inbound commands let the operator
// inspect the book and pause/resume copying.
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatusProvider supplies the data behind /status and /positions
type StatusProvider interface {
	GetBalance() (decimal.Decimal, error)
	GetOpenPositions() []types.Position
	GetTradingStats() (opened, closed int64, realizedPnL decimal.Decimal)
	IsPaused() (bool, string)
}

// TradingControl is the pause/resume hook wired to the circuit breaker
type TradingControl interface {
	ManualTrip(reason string)
	ManualReset()
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	status  StatusProvider
	control TradingControl
}

// NewTelegramBot creates a bot from a token and authorized chat id
func NewTelegramBot(token string, chatID int64, status StatusProvider, control TradingControl) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:     api,
		chatID:  chatID,
		stopCh:  make(chan struct{}),
		status:  status,
		control: control,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// Notify implements Notifier. Delivery happens off the caller's goroutine.
func (b *TelegramBot) Notify(severity Severity, message string) {
	emoji := "ℹ️"
	switch severity {
	case SeverityWarn:
		emoji = "⚠️"
	case SeverityCritical:
		emoji = "🚨"
	}

	go b.send(fmt.Sprintf("%s %s", emoji, message))
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "positions":
		b.cmdPositions()
	case "pause":
		b.cmdPause()
	case "resume":
		b.cmdResume()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *COPYBOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Bot status & P&L
💼 /positions — Open positions
⏸️ /pause — Pause copying
▶️ /resume — Resume copying
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	if b.status == nil {
		b.send("❌ Status not available")
		return
	}

	state := "🟢 COPYING"
	paused, reason := b.status.IsPaused()
	if paused {
		state = "⏸️ PAUSED"
		if reason != "" {
			state += " (" + reason + ")"
		}
	}

	balanceStr := "N/A"
	if bal, err := b.status.GetBalance(); err == nil {
		balanceStr = "$" + bal.StringFixed(2)
	}

	opened, closed, pnl := b.status.GetTradingStats()
	sign := "+"
	if pnl.IsNegative() {
		sign = ""
	}

	msg := fmt.Sprintf(`📊 *BOT STATUS*
━━━━━━━━━━━━━━━━━━━━

%s
💰 Balance: *%s*
📈 Opened: *%d* | Closed: *%d*
💵 Realized P&L: *%s$%s*`,
		state, balanceStr,
		opened, closed,
		sign, pnl.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPositions() {
	if b.status == nil {
		b.send("❌ Positions not available")
		return
	}

	positions := b.status.GetOpenPositions()
	if len(positions) == 0 {
		b.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for i, pos := range positions {
		sideEmoji := "🟢"
		if pos.Side == types.SideSell {
			sideEmoji = "🔴"
		}
		duration := time.Since(pos.OpenedAt).Round(time.Second)

		msg += fmt.Sprintf(`%s *%s* — %s
💵 Entry: %s¢ | Size: %s
🎯 TP: %s¢ | 🛑 SL: %s¢
⏱️ Held: %v

`,
			sideEmoji, shortKey(pos.MarketID), pos.Side,
			pos.EntryPrice.Mul(decimal.NewFromInt(100)).StringFixed(1),
			pos.Size.StringFixed(2),
			pos.TakeProfit.Mul(decimal.NewFromInt(100)).StringFixed(1),
			pos.StopLoss.Mul(decimal.NewFromInt(100)).StringFixed(1),
			duration,
		)

		if i >= 4 {
			msg += fmt.Sprintf("_... and %d more_", len(positions)-5)
			break
		}
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPause() {
	if b.control != nil {
		b.control.ManualTrip("paused via Telegram")
	}
	b.send("⏸️ Copying paused")
	log.Info().Msg("Copying paused via Telegram")
}

func (b *TelegramBot) cmdResume() {
	if b.control != nil {
		b.control.ManualReset()
	}
	b.send("▶️ Copying resumed")
	log.Info().Msg("Copying resumed via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func shortKey(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
