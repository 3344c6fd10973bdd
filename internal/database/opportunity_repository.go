package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/jackc/pgx/v5"
)

const createOpportunitiesTable = `
	CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
		id                   UUID PRIMARY KEY,
		symbol               TEXT NOT NULL,
		buy_exchange         TEXT NOT NULL,
		sell_exchange        TEXT NOT NULL,
		buy_price            DOUBLE PRECISION NOT NULL,
		sell_price           DOUBLE PRECISION NOT NULL,
		profit_percentage    DOUBLE PRECISION NOT NULL,
		profit_absolute      DOUBLE PRECISION NOT NULL,
		threshold_percentage DOUBLE PRECISION NOT NULL,
		threshold_absolute   DOUBLE PRECISION NOT NULL,
		detected_at          TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_arbitrage_opportunities_detected_at
		ON arbitrage_opportunities (detected_at);
	CREATE INDEX IF NOT EXISTS idx_arbitrage_opportunities_symbol_detected_at
		ON arbitrage_opportunities (symbol, detected_at)
`

// OpportunityRepository records emitted opportunities in PostgreSQL for
// statistics queries.
type OpportunityRepository struct {
	pool DatabasePool
}

// NewOpportunityRepository creates a new opportunity repository.
//
// Parameters:
//
//	pool: The database connection pool.
//
// Returns:
//
//	*OpportunityRepository: The initialized repository.
func NewOpportunityRepository(pool DatabasePool) *OpportunityRepository {
	return &OpportunityRepository{pool: pool}
}

// EnsureSchema creates the opportunities table and its indexes if missing.
func (r *OpportunityRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createOpportunitiesTable); err != nil {
		return fmt.Errorf("failed to create arbitrage_opportunities table: %w", err)
	}
	return nil
}

// Append inserts one opportunity record. A missing or non-UUID id is replaced.
//
// Parameters:
//
//	ctx: Context.
//	opp: The opportunity to record.
//
// Returns:
//
//	error: Error if the insert fails.
func (r *OpportunityRepository) Append(ctx context.Context, opp models.ArbitrageOpportunity) error {
	id := opp.ID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO arbitrage_opportunities (
			id, symbol, buy_exchange, sell_exchange, buy_price, sell_price,
			profit_percentage, profit_absolute, threshold_percentage, threshold_absolute, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		id, opp.Symbol, opp.BuyExchange, opp.SellExchange, opp.BuyPrice, opp.SellPrice,
		opp.ProfitPercentage, opp.ProfitAbsolute, opp.ThresholdPercentage, opp.ThresholdAbsolute,
		opp.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert arbitrage opportunity: %w", err)
	}
	return nil
}

// Range returns records detected in [start, end], oldest first. An empty
// symbol matches every symbol.
//
// Parameters:
//
//	ctx: Context.
//	symbol: Optional symbol filter.
//	start: Window start (inclusive).
//	end: Window end (inclusive).
//
// Returns:
//
//	[]models.ArbitrageOpportunity: Matching records.
//	error: Error if the query fails.
func (r *OpportunityRepository) Range(ctx context.Context, symbol string, start, end time.Time) ([]models.ArbitrageOpportunity, error) {
	query := `
		SELECT id, symbol, buy_exchange, sell_exchange, buy_price, sell_price,
			profit_percentage, profit_absolute, threshold_percentage, threshold_absolute, detected_at
		FROM arbitrage_opportunities
		WHERE detected_at >= $1 AND detected_at <= $2
			AND ($3 = '' OR symbol = $3)
		ORDER BY detected_at ASC
	`

	rows, err := r.pool.Query(ctx, query, start.UTC(), end.UTC(), symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query arbitrage opportunities: %w", err)
	}
	defer rows.Close()

	var out []models.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating arbitrage opportunities: %w", err)
	}
	return out, nil
}

// Prune deletes records detected before cutoff and returns how many were removed.
func (r *OpportunityRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM arbitrage_opportunities WHERE detected_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune arbitrage opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOpportunity(row pgx.Row) (models.ArbitrageOpportunity, error) {
	var opp models.ArbitrageOpportunity
	err := row.Scan(
		&opp.ID,
		&opp.Symbol,
		&opp.BuyExchange,
		&opp.SellExchange,
		&opp.BuyPrice,
		&opp.SellPrice,
		&opp.ProfitPercentage,
		&opp.ProfitAbsolute,
		&opp.ThresholdPercentage,
		&opp.ThresholdAbsolute,
		&opp.Timestamp,
	)
	if err != nil {
		return opp, fmt.Errorf("failed to scan arbitrage opportunity: %w", err)
	}
	opp.Timestamp = opp.Timestamp.UTC()
	return opp, nil
}
