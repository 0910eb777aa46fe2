package positions

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION STORE
// ═══════════════════════════════════════════════════════════════════════════════
//
// In-memory book of open replica positions. Two lock granularities:
// the store mutex guards the map and aggregate counters, while per-key
// mutexes serialize open/close races on a single position without
// blocking unrelated keys.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrDuplicateKey is returned when a position key is already booked
var ErrDuplicateKey = fmt.Errorf("position key already exists")

// Stats is an aggregate snapshot of the book
type Stats struct {
	Open        int
	TotalOpened int64
	TotalClosed int64
	RealizedPnL decimal.Decimal
}

// Store holds open positions keyed by position key
type Store struct {
	mu        sync.RWMutex
	positions map[string]*types.Position

	keyMu    sync.Mutex
	keyLocks map[string]*sync.Mutex

	opened   int64
	closed   int64
	realized decimal.Decimal
}

// NewStore creates an empty position book
func NewStore() *Store {
	return &Store{
		positions: make(map[string]*types.Position),
		keyLocks:  make(map[string]*sync.Mutex),
		realized:  decimal.Zero,
	}
}

// LockKey acquires the per-key mutex and returns its unlock func.
// Callers hold it across check-then-insert or check-then-close sequences.
func (s *Store) LockKey(key string) func() {
	s.keyMu.Lock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	s.keyMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Insert books a new position, rejecting duplicate keys
func (s *Store) Insert(p *types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.Key]; exists {
		return ErrDuplicateKey
	}

	cp := *p
	s.positions[p.Key] = &cp
	s.opened++
	return nil
}

// Get returns a copy of a position
func (s *Store) Get(key string) (types.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[key]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

// Has reports whether a key is booked
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.positions[key]
	return ok
}

// SetStatus transitions a position's lifecycle state
func (s *Store) SetStatus(key string, status types.PositionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[key]
	if !ok {
		return false
	}
	p.Status = status
	return true
}

// RecordClose removes a position and folds its realized P&L into the totals
func (s *Store) RecordClose(key string, pnl decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[key]; !ok {
		return
	}
	delete(s.positions, key)
	s.closed++
	s.realized = s.realized.Add(pnl)

	s.keyMu.Lock()
	delete(s.keyLocks, key)
	s.keyMu.Unlock()
}

// List returns copies of all booked positions
func (s *Store) List() []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out
}

// Len returns the number of open positions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// GetStats returns an aggregate snapshot
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Open:        len(s.positions),
		TotalOpened: s.opened,
		TotalClosed: s.closed,
		RealizedPnL: s.realized,
	}
}
