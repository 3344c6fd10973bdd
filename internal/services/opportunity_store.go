package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultHistorySize is the capacity of the rolling opportunity history.
const DefaultHistorySize = 1000

// spreadTrendPeriod is the EMA period used for the statistics spread trend.
const spreadTrendPeriod = 10

// OpportunityLog is the durable append-only record of emitted opportunities.
type OpportunityLog interface {
	Append(ctx context.Context, opportunity models.ArbitrageOpportunity) error
	// Range returns records with timestamp in [start, end], oldest first,
	// optionally restricted to one symbol.
	Range(ctx context.Context, symbol string, start, end time.Time) ([]models.ArbitrageOpportunity, error)
}

// OpportunityStore keeps the active opportunity map and a bounded history,
// and forwards every emitted opportunity to the durable log.
type OpportunityStore struct {
	log    OpportunityLog
	logger *logrus.Logger
	now    func() time.Time

	mu         sync.RWMutex
	active     map[string]models.ArbitrageOpportunity
	history    []models.ArbitrageOpportunity
	head       int
	size       int
	lastUpdate time.Time
}

// NewOpportunityStore creates a store whose history holds at most capacity
// entries. A nil log disables statistics recording.
func NewOpportunityStore(capacity int, log OpportunityLog, logger *logrus.Logger) *OpportunityStore {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &OpportunityStore{
		log:     log,
		logger:  logger,
		now:     time.Now,
		active:  make(map[string]models.ArbitrageOpportunity),
		history: make([]models.ArbitrageOpportunity, capacity),
	}
}

// Add overwrites the active entry for each opportunity's key and appends it to
// the history, evicting the oldest entries on overflow.
func (s *OpportunityStore) Add(opportunities ...models.ArbitrageOpportunity) {
	if len(opportunities) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.history)
	for _, opp := range opportunities {
		s.active[opp.Key()] = opp

		idx := (s.head + s.size) % capacity
		s.history[idx] = opp
		if s.size < capacity {
			s.size++
		} else {
			s.head = (s.head + 1) % capacity
		}
	}
	s.lastUpdate = s.now()
}

// ActiveOpportunities returns the active map as a slice ordered by profit
// percentage, best first. maxAge > 0 drops entries older than that.
func (s *OpportunityStore) ActiveOpportunities(maxAge time.Duration) []models.ArbitrageOpportunity {
	s.mu.RLock()
	out := make([]models.ArbitrageOpportunity, 0, len(s.active))
	cutoff := s.now().Add(-maxAge)
	for _, opp := range s.active {
		if maxAge > 0 && opp.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, opp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProfitPercentage != out[j].ProfitPercentage {
			return out[i].ProfitPercentage > out[j].ProfitPercentage
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Active returns the opportunity stored under key.
func (s *OpportunityStore) Active(key string) (models.ArbitrageOpportunity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opp, ok := s.active[key]
	return opp, ok
}

// History returns up to limit of the most recent entries, oldest first.
// limit <= 0 returns the whole history.
func (s *OpportunityStore) History(limit int) []models.ArbitrageOpportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.size {
		limit = s.size
	}
	out := make([]models.ArbitrageOpportunity, limit)
	capacity := len(s.history)
	start := s.head + s.size - limit
	for i := 0; i < limit; i++ {
		out[i] = s.history[(start+i)%capacity]
	}
	return out
}

// ActiveCount is the number of keys in the active map.
func (s *OpportunityStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// HistoryCount is the number of entries in the history.
func (s *OpportunityStore) HistoryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// LastUpdate is the time of the most recent Add.
func (s *OpportunityStore) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// RecordForStatistics appends opportunity to the durable log.
func (s *OpportunityStore) RecordForStatistics(ctx context.Context, opportunity models.ArbitrageOpportunity) error {
	if s.log == nil {
		return nil
	}
	if err := s.log.Append(ctx, opportunity); err != nil {
		return fmt.Errorf("%w: record opportunity %s: %w", utils.ErrPersistence, opportunity.Key(), err)
	}
	return nil
}

// GetStatistics aggregates durable records from the last hours, optionally for
// one symbol. The spread of a record is its absolute profit.
func (s *OpportunityStore) GetStatistics(ctx context.Context, symbol string, hours int) (*models.ArbitrageStatistics, error) {
	if hours <= 0 {
		return nil, utils.NewFieldError("hours", "window must be a positive number of hours")
	}

	end := s.now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	if s.log == nil {
		return models.EmptyStatistics(start, end), nil
	}

	records, err := s.log.Range(ctx, normalizeSymbol(symbol), start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: load opportunity records: %w", utils.ErrPersistence, err)
	}
	return AggregateStatistics(records, start, end), nil
}

// AggregateStatistics computes window aggregates over records ordered oldest first.
func AggregateStatistics(records []models.ArbitrageOpportunity, start, end time.Time) *models.ArbitrageStatistics {
	stats := models.EmptyStatistics(start, end)
	if len(records) == 0 {
		return stats
	}

	spreads := make([]float64, 0, len(records))
	total := 0.0
	for _, rec := range records {
		spread := rec.ProfitAbsolute
		spreads = append(spreads, spread)
		total += spread
		if spread > stats.MaxSpread {
			stats.MaxSpread = spread
		}
		stats.OpportunitiesBySymbol[rec.Symbol]++
		stats.OpportunitiesByExchangePair[rec.ExchangePair()]++
	}

	stats.TotalOpportunities = len(records)
	stats.AverageSpread = total / float64(len(records))
	stats.SpreadTrend = spreadTrend(spreads, stats.AverageSpread)
	return stats
}

// spreadTrend returns the last EMA value of the spread series, falling back to
// the mean when the series is too short to smooth.
func spreadTrend(spreads []float64, mean float64) float64 {
	period := spreadTrendPeriod
	if len(spreads) < period {
		period = len(spreads)
	}
	if period < 2 {
		return mean
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	values := helper.ChanToSlice(ema.Compute(helper.SliceToChan(spreads)))
	if len(values) == 0 {
		return mean
	}
	return values[len(values)-1]
}
