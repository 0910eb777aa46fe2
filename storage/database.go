package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/risk"
	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Persistence for positions, audit trail, and breaker state
// ═══════════════════════════════════════════════════════════════════════════════
//
// SQLite by default, PostgreSQL when the DSN carries a postgres:// prefix.
// Open positions are persisted so a restart can rebuild the in-memory book;
// the circuit breaker state lives in a single-row table.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// Models

// PositionRecord mirrors an in-memory position for recovery and audit
type PositionRecord struct {
	Key          string `gorm:"primaryKey"`
	MarketID     string `gorm:"index"`
	TokenID      string
	Side         string
	EntryPrice   decimal.Decimal `gorm:"type:decimal(10,6)"`
	Size         decimal.Decimal `gorm:"type:decimal(20,6)"`
	StopLoss     decimal.Decimal `gorm:"type:decimal(10,6)"`
	TakeProfit   decimal.Decimal `gorm:"type:decimal(10,6)"`
	Status       string          `gorm:"index"` // OPEN, CLOSED
	ExitPrice    decimal.Decimal `gorm:"type:decimal(10,6)"`
	PnL          decimal.Decimal `gorm:"type:decimal(20,6)"`
	ExitReason   string
	SourceTx     string
	SourceWallet string `gorm:"index"`
	OpenedAt     time.Time
	ClosedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExecutionRecord is the audit log of every signal outcome
type ExecutionRecord struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	TxHash       string `gorm:"index"`
	SourceWallet string
	MarketID     string
	Side         string
	Status       string // EXECUTED, REJECTED, FAILED
	Reason       string
	Size         decimal.Decimal `gorm:"type:decimal(20,6)"`
	Confidence   float64
	CreatedAt    time.Time
}

// BreakerRecord is the single-row persisted circuit breaker state
type BreakerRecord struct {
	ID        uint   `gorm:"primaryKey"`
	StateJSON string // serialized risk.State
	UpdatedAt time.Time
}

// New opens the database at the given DSN and migrates the schema
func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&PositionRecord{}, &ExecutionRecord{}, &BreakerRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSITIONS
// ═══════════════════════════════════════════════════════════════════════════════

// SaveOpened persists a newly opened position
func (d *Database) SaveOpened(p types.Position) error {
	rec := PositionRecord{
		Key:          p.Key,
		MarketID:     p.MarketID,
		TokenID:      p.TokenID,
		Side:         string(p.Side),
		EntryPrice:   p.EntryPrice,
		Size:         p.Size,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		Status:       string(types.StatusOpen),
		SourceTx:     p.SourceTx,
		SourceWallet: p.SourceWallet,
		OpenedAt:     p.OpenedAt,
	}
	return d.db.Save(&rec).Error
}

// MarkClosed finalizes a position record with its exit
func (d *Database) MarkClosed(key string, exitPrice, pnl decimal.Decimal, reason string) error {
	now := time.Now().UTC()
	return d.db.Model(&PositionRecord{}).Where("key = ?", key).Updates(map[string]interface{}{
		"status":      string(types.StatusClosed),
		"exit_price":  exitPrice,
		"pn_l":        pnl,
		"exit_reason": reason,
		"closed_at":   &now,
	}).Error
}

// GetOpenPositions returns persisted open positions for restart recovery
func (d *Database) GetOpenPositions() ([]types.Position, error) {
	var recs []PositionRecord
	if err := d.db.Where("status = ?", string(types.StatusOpen)).Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]types.Position, 0, len(recs))
	for _, r := range recs {
		out = append(out, types.Position{
			Key:          r.Key,
			MarketID:     r.MarketID,
			TokenID:      r.TokenID,
			Side:         types.Side(r.Side),
			EntryPrice:   r.EntryPrice,
			Size:         r.Size,
			StopLoss:     r.StopLoss,
			TakeProfit:   r.TakeProfit,
			OpenedAt:     r.OpenedAt,
			Status:       types.StatusOpen,
			SourceTx:     r.SourceTx,
			SourceWallet: r.SourceWallet,
		})
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION AUDIT
// ═══════════════════════════════════════════════════════════════════════════════

// LogExecution records one signal outcome
func (d *Database) LogExecution(sig types.TradeSignal, res types.ExecResult) error {
	rec := ExecutionRecord{
		TxHash:       sig.TxHash,
		SourceWallet: sig.Wallet,
		MarketID:     sig.MarketID,
		Side:         string(sig.Side),
		Status:       string(res.Status),
		Reason:       res.Reason,
		Size:         res.Size,
		Confidence:   sig.Confidence,
	}
	return d.db.Create(&rec).Error
}

// GetRecentExecutions returns the latest audit entries
func (d *Database) GetRecentExecutions(limit int) ([]ExecutionRecord, error) {
	var recs []ExecutionRecord
	err := d.db.Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// ═══════════════════════════════════════════════════════════════════════════════
// BREAKER STATE
// ═══════════════════════════════════════════════════════════════════════════════

// SaveBreakerState implements risk.StateStore
func (d *Database) SaveBreakerState(s risk.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	rec := BreakerRecord{ID: 1, StateJSON: string(data)}
	return d.db.Save(&rec).Error
}

// LoadBreakerState implements risk.StateStore
func (d *Database) LoadBreakerState() (risk.State, bool, error) {
	var rec BreakerRecord
	err := d.db.First(&rec, 1).Error
	if err == gorm.ErrRecordNotFound {
		return risk.State{}, false, nil
	}
	if err != nil {
		return risk.State{}, false, err
	}

	var s risk.State
	if err := json.Unmarshal([]byte(rec.StateJSON), &s); err != nil {
		return risk.State{}, false, err
	}
	return s, true, nil
}

// Close releases the underlying connection
func (d *Database) Close() {
	if sqlDB, err := d.db.DB(); err == nil {
		sqlDB.Close()
	}
}
