package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opportunityColumns = []string{
	"id", "symbol", "buy_exchange", "sell_exchange", "buy_price", "sell_price",
	"profit_percentage", "profit_absolute", "threshold_percentage", "threshold_absolute", "detected_at",
}

func sampleOpportunity(ts time.Time) models.ArbitrageOpportunity {
	return models.ArbitrageOpportunity{
		Symbol:              "BTC-USDT",
		BuyExchange:         "binance",
		SellExchange:        "okx",
		BuyPrice:            100,
		SellPrice:           101,
		ProfitPercentage:    1,
		ProfitAbsolute:      1,
		Timestamp:           ts,
		ThresholdPercentage: 0.5,
		ThresholdAbsolute:   1,
	}
}

func TestOpportunityRepository_EnsureSchema(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec(`CREATE TABLE IF NOT EXISTS arbitrage_opportunities`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	repo := NewOpportunityRepository(mockPool)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestOpportunityRepository_Append(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	opp := sampleOpportunity(ts)

	mockPool.ExpectExec(`INSERT INTO arbitrage_opportunities`).
		WithArgs(pgxmock.AnyArg(), "BTC-USDT", "binance", "okx", 100.0, 101.0, 1.0, 1.0, 0.5, 1.0, ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewOpportunityRepository(mockPool)
	require.NoError(t, repo.Append(context.Background(), opp))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestOpportunityRepository_AppendError(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec(`INSERT INTO arbitrage_opportunities`).
		WillReturnError(errors.New("connection reset"))

	repo := NewOpportunityRepository(mockPool)
	err = repo.Append(context.Background(), sampleOpportunity(time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert arbitrage opportunity")
}

func TestOpportunityRepository_Range(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	end := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	start := end.Add(-24 * time.Hour)
	first := end.Add(-3 * time.Hour)
	second := end.Add(-time.Hour)

	mockPool.ExpectQuery(`SELECT (.+) FROM arbitrage_opportunities`).
		WithArgs(start, end, "BTC-USDT").
		WillReturnRows(pgxmock.NewRows(opportunityColumns).
			AddRow("0b7f1a2c-0000-4000-8000-000000000001", "BTC-USDT", "binance", "okx", 100.0, 101.0, 1.0, 1.0, 0.5, 1.0, first).
			AddRow("0b7f1a2c-0000-4000-8000-000000000002", "BTC-USDT", "okx", "bybit", 200.0, 203.0, 1.5, 3.0, 0.5, 1.0, second))

	repo := NewOpportunityRepository(mockPool)
	records, err := repo.Range(context.Background(), "BTC-USDT", start, end)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "0b7f1a2c-0000-4000-8000-000000000001", records[0].ID)
	assert.Equal(t, first, records[0].Timestamp)
	assert.Equal(t, "okx-bybit", records[1].ExchangePair())
	assert.Equal(t, 3.0, records[1].ProfitAbsolute)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestOpportunityRepository_RangeQueryError(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery(`SELECT (.+) FROM arbitrage_opportunities`).
		WillReturnError(errors.New("relation does not exist"))

	repo := NewOpportunityRepository(mockPool)
	_, err = repo.Range(context.Background(), "", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query arbitrage opportunities")
}

func TestOpportunityRepository_Prune(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mockPool.ExpectExec(`DELETE FROM arbitrage_opportunities`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	repo := NewOpportunityRepository(mockPool)
	removed, err := repo.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
