package monitor

import (
	"time"

	"github.com/winder87-stack/-polymarket-copy-bot-sub001/cache"
)

// ProcessedTxSet remembers every transaction id evaluated within a sliding
// time window, whether or not it became a signal, so dedup memory stays
// bounded by time rather than by how many trades were interesting.
type ProcessedTxSet struct {
	c *cache.Cache[string, time.Time]
}

// NewProcessedTxSet builds a set bounded by window and maxEntries
func NewProcessedTxSet(window time.Duration, maxEntries int) *ProcessedTxSet {
	return &ProcessedTxSet{
		c: cache.New[string, time.Time]("processed-tx", cache.Config{
			MaxEntries:      maxEntries,
			TTL:             window,
			CleanupInterval: window / 4,
			EntryBytes:      96, // tx hash + timestamp
		}),
	}
}

// Seen reports whether the transaction id is still inside the window
func (s *ProcessedTxSet) Seen(txHash string) bool {
	_, ok := s.c.Get(txHash)
	return ok
}

// Mark records the transaction id at evaluation time
func (s *ProcessedTxSet) Mark(txHash string) {
	s.c.Set(txHash, time.Now().UTC())
}

// Len returns the current set size
func (s *ProcessedTxSet) Len() int { return s.c.Len() }

// Stop halts the background sweeper
func (s *ProcessedTxSet) Stop() { s.c.Stop() }
