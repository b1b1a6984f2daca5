package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/types"
)

// HistoryRepository stores the performance history of portfolios in
// ClickHouse. Values are stored as strings to keep full decimal precision.
type HistoryRepository struct {
	db *ClickHouseDB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *ClickHouseDB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record appends one value point to the history
func (r *HistoryRepository) Record(ctx context.Context, point *types.ValuePoint) error {
	query := `
		INSERT INTO value_history (portfolio_id, total_value, captured_at)
		VALUES (?, ?, ?)
	`
	return r.db.Conn().Exec(ctx, query,
		point.PortfolioID,
		point.TotalValue.String(),
		point.CapturedAt,
	)
}

// RecordBatch appends multiple value points efficiently
func (r *HistoryRepository) RecordBatch(ctx context.Context, points []types.ValuePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO value_history (portfolio_id, total_value, captured_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(p.PortfolioID, p.TotalValue.String(), p.CapturedAt); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// Range returns the value points for a portfolio within [from, to] in
// ascending capture order
func (r *HistoryRepository) Range(ctx context.Context, portfolioID string, from, to time.Time) ([]types.ValuePoint, error) {
	query := `
		SELECT portfolio_id, total_value, captured_at
		FROM value_history
		WHERE portfolio_id = ? AND captured_at >= ? AND captured_at <= ?
		ORDER BY captured_at ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, portfolioID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query value history: %w", err)
	}
	defer rows.Close()

	var points []types.ValuePoint
	for rows.Next() {
		var point types.ValuePoint
		var totalValue string
		if err := rows.Scan(&point.PortfolioID, &totalValue, &point.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan value point: %w", err)
		}
		point.TotalValue, err = decimal.NewFromString(totalValue)
		if err != nil {
			return nil, fmt.Errorf("corrupt total value for %s: %w", point.PortfolioID, err)
		}
		points = append(points, point)
	}

	return points, rows.Err()
}

// Latest returns the most recent value point for a portfolio, or nil when the
// history is empty
func (r *HistoryRepository) Latest(ctx context.Context, portfolioID string) (*types.ValuePoint, error) {
	query := `
		SELECT portfolio_id, total_value, captured_at
		FROM value_history
		WHERE portfolio_id = ?
		ORDER BY captured_at DESC
		LIMIT 1
	`

	rows, err := r.db.Conn().Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query value history: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var point types.ValuePoint
	var totalValue string
	if err := rows.Scan(&point.PortfolioID, &totalValue, &point.CapturedAt); err != nil {
		return nil, fmt.Errorf("failed to scan value point: %w", err)
	}
	point.TotalValue, err = decimal.NewFromString(totalValue)
	if err != nil {
		return nil, fmt.Errorf("corrupt total value for %s: %w", point.PortfolioID, err)
	}
	return &point, nil
}
