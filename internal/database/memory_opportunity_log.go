package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
)

// MemoryOpportunityLog keeps opportunity records in process memory. It is the
// default statistics backend and loses its contents on restart.
type MemoryOpportunityLog struct {
	mu      sync.RWMutex
	records []models.ArbitrageOpportunity
}

func NewMemoryOpportunityLog() *MemoryOpportunityLog {
	return &MemoryOpportunityLog{}
}

func (l *MemoryOpportunityLog) Append(_ context.Context, opp models.ArbitrageOpportunity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	opp.Timestamp = opp.Timestamp.UTC()
	// Records usually arrive in time order; insert in place when they do not.
	idx := sort.Search(len(l.records), func(i int) bool {
		return l.records[i].Timestamp.After(opp.Timestamp)
	})
	l.records = append(l.records, models.ArbitrageOpportunity{})
	copy(l.records[idx+1:], l.records[idx:])
	l.records[idx] = opp
	return nil
}

func (l *MemoryOpportunityLog) Range(_ context.Context, symbol string, start, end time.Time) ([]models.ArbitrageOpportunity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	from := sort.Search(len(l.records), func(i int) bool {
		return !l.records[i].Timestamp.Before(start)
	})
	out := make([]models.ArbitrageOpportunity, 0)
	for _, rec := range l.records[from:] {
		if rec.Timestamp.After(end) {
			break
		}
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (l *MemoryOpportunityLog) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := sort.Search(len(l.records), func(i int) bool {
		return !l.records[i].Timestamp.Before(cutoff)
	})
	l.records = append([]models.ArbitrageOpportunity(nil), l.records[n:]...)
	return int64(n), nil
}

// Len returns the number of stored records.
func (l *MemoryOpportunityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
