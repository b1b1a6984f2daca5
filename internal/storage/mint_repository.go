package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/portfolio-engine/internal/models"
)

// ErrMintNotFound is returned when a portfolio has no governance mint.
var ErrMintNotFound = errors.New("governance mint not found")

// MintRepository persists governance issuance counters.
type MintRepository struct {
	db *PostgresDB
}

// NewMintRepository creates a new mint repository
func NewMintRepository(db *PostgresDB) *MintRepository {
	return &MintRepository{db: db}
}

// GetByPortfolio returns the governance mint for a portfolio
func (r *MintRepository) GetByPortfolio(ctx context.Context, portfolioID string) (*models.GovernanceMint, error) {
	query := `
		SELECT id, portfolio_id, total_issued, updated_at
		FROM governance_mints
		WHERE portfolio_id = $1
	`

	var mint models.GovernanceMint
	err := r.db.Pool().QueryRow(ctx, query, portfolioID).Scan(
		&mint.ID,
		&mint.PortfolioID,
		&mint.TotalIssued,
		&mint.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get governance mint: %w", err)
	}
	return &mint, nil
}

// Upsert creates or updates the governance mint for a portfolio
func (r *MintRepository) Upsert(ctx context.Context, mint *models.GovernanceMint) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return upsertMintTx(ctx, tx, mint)
	})
}

// SaveIssuance writes the mint counter and the portfolio's mint link in one
// transaction. Pass a nil portfolio when the link already exists.
func (r *MintRepository) SaveIssuance(ctx context.Context, mint *models.GovernanceMint, portfolio *models.Portfolio) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := upsertMintTx(ctx, tx, mint); err != nil {
			return err
		}
		if portfolio != nil {
			return savePortfolioTx(ctx, tx, portfolio)
		}
		return nil
	})
}

func upsertMintTx(ctx context.Context, tx pgx.Tx, mint *models.GovernanceMint) error {
	if mint.ID == "" {
		mint.ID = uuid.New().String()
	}
	mint.UpdatedAt = time.Now()

	_, err := tx.Exec(ctx, `
		INSERT INTO governance_mints (id, portfolio_id, total_issued, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (portfolio_id) DO UPDATE
		SET total_issued = EXCLUDED.total_issued,
		    updated_at = EXCLUDED.updated_at
	`, mint.ID, mint.PortfolioID, mint.TotalIssued, mint.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save governance mint: %w", err)
	}
	return nil
}
