package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/core/ports/driven"
)

// Ensure Ledger implements the interface.
var _ driven.IterationLedger = (*Ledger)(nil)

// Ledger is an in-memory implementation of driven.IterationLedger.
type Ledger struct {
	mu      sync.RWMutex
	records []domain.IterationRecord
}

// NewLedger creates a new in-memory iteration ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record logs one committed iteration.
func (l *Ledger) Record(_ context.Context, rec domain.IterationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].ID == rec.ID {
			l.records[i] = rec
			return nil
		}
	}
	l.records = append(l.records, rec)
	return nil
}

// History returns recent iteration records, most recent first.
func (l *Ledger) History(_ context.Context, limit int) ([]domain.IterationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := append([]domain.IterationRecord(nil), l.records...)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Iteration > records[j].Iteration
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Prune keeps the most recent 'keep' records.
func (l *Ledger) Prune(_ context.Context, keep int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if keep < 0 || len(l.records) <= keep {
		return nil
	}
	sort.Slice(l.records, func(i, j int) bool {
		return l.records[i].Iteration > l.records[j].Iteration
	})
	l.records = l.records[:keep]
	return nil
}
