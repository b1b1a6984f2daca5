package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
)

// ErrPortfolioNotFound is returned when no portfolio row exists for an id.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// PortfolioRepository handles portfolio data persistence. A portfolio spans
// two tables, portfolios and holdings, and every write touches both inside a
// single transaction so a committed row set is always a consistent snapshot.
type PortfolioRepository struct {
	db *PostgresDB
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *PostgresDB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// Create persists a new portfolio and its holdings
func (r *PortfolioRepository) Create(ctx context.Context, portfolio *models.Portfolio) error {
	if portfolio.ID == "" {
		portfolio.ID = uuid.New().String()
	}

	now := time.Now()
	portfolio.CreatedAt = now
	portfolio.UpdatedAt = now

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := insertPortfolioTx(ctx, tx, portfolio); err != nil {
			return err
		}
		return insertHoldingsTx(ctx, tx, portfolio)
	})
}

// GetByID retrieves a portfolio with its holdings
func (r *PortfolioRepository) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	query := `
		SELECT id, owner, min_value, max_value,
		       management_rate, performance_rate, high_water_mark, last_accrual_at,
		       target_ratios, multisig_signers, multisig_threshold,
		       governance_mint_id, created_at, updated_at
		FROM portfolios
		WHERE id = $1
	`

	var portfolio models.Portfolio
	var owner string
	var targetRatios []byte
	var signers []string
	var threshold *int

	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&portfolio.ID,
		&owner,
		&portfolio.RiskBounds.MinValue,
		&portfolio.RiskBounds.MaxValue,
		&portfolio.FeeState.ManagementRate,
		&portfolio.FeeState.PerformanceRate,
		&portfolio.FeeState.HighWaterMark,
		&portfolio.FeeState.LastAccrualAt,
		&targetRatios,
		&signers,
		&threshold,
		&portfolio.GovernanceMintID,
		&portfolio.CreatedAt,
		&portfolio.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	portfolio.Owner = types.Identity(owner)

	if len(targetRatios) > 0 {
		if err := json.Unmarshal(targetRatios, &portfolio.TargetRatios); err != nil {
			return nil, fmt.Errorf("failed to decode target ratios: %w", err)
		}
	}

	if threshold != nil {
		mc := &models.MultisigConfig{Threshold: *threshold}
		mc.Signers = make([]types.Identity, len(signers))
		for i, s := range signers {
			mc.Signers[i] = types.Identity(s)
		}
		portfolio.MultisigConfig = mc
	}

	holdings, err := r.loadHoldings(ctx, id)
	if err != nil {
		return nil, err
	}
	portfolio.Holdings = holdings

	return &portfolio, nil
}

// Update persists the full portfolio state. The portfolio row and all
// holding rows are replaced in one transaction; callers pass a staged clone
// that has already passed validation.
func (r *PortfolioRepository) Update(ctx context.Context, portfolio *models.Portfolio) error {
	portfolio.UpdatedAt = time.Now()

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return savePortfolioTx(ctx, tx, portfolio)
	})
}

// Delete removes a portfolio. Holdings are removed by the foreign key cascade.
func (r *PortfolioRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPortfolioNotFound
	}
	return nil
}

// ListByOwner returns all portfolio ids owned by an identity
func (r *PortfolioRepository) ListByOwner(ctx context.Context, owner types.Identity) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT id FROM portfolios WHERE owner = $1 ORDER BY created_at`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListIDs returns every portfolio id. Used by the snapshot job to walk the
// full portfolio set.
func (r *PortfolioRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id FROM portfolios ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PortfolioRepository) loadHoldings(ctx context.Context, portfolioID string) ([]models.Holding, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT asset_id, amount, unit_value, last_updated_at
		FROM holdings
		WHERE portfolio_id = $1
		ORDER BY asset_id
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		var assetID string
		if err := rows.Scan(&assetID, &h.Amount, &h.UnitValue, &h.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.AssetID = types.AssetID(assetID)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func insertPortfolioTx(ctx context.Context, tx pgx.Tx, portfolio *models.Portfolio) error {
	targetRatios, signers, threshold, err := encodePortfolioColumns(portfolio)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO portfolios (
			id, owner, min_value, max_value,
			management_rate, performance_rate, high_water_mark, last_accrual_at,
			target_ratios, multisig_signers, multisig_threshold,
			governance_mint_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.Exec(ctx, query,
		portfolio.ID,
		string(portfolio.Owner),
		portfolio.RiskBounds.MinValue,
		portfolio.RiskBounds.MaxValue,
		portfolio.FeeState.ManagementRate,
		portfolio.FeeState.PerformanceRate,
		portfolio.FeeState.HighWaterMark,
		portfolio.FeeState.LastAccrualAt,
		targetRatios,
		signers,
		threshold,
		portfolio.GovernanceMintID,
		portfolio.CreatedAt,
		portfolio.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// savePortfolioTx replaces the portfolio row and its holdings inside an
// existing transaction. Shared with the withdrawal repository so an execution
// can commit the portfolio and the withdrawal status together.
func savePortfolioTx(ctx context.Context, tx pgx.Tx, portfolio *models.Portfolio) error {
	targetRatios, signers, threshold, err := encodePortfolioColumns(portfolio)
	if err != nil {
		return err
	}

	query := `
		UPDATE portfolios
		SET owner = $2, min_value = $3, max_value = $4,
		    management_rate = $5, performance_rate = $6,
		    high_water_mark = $7, last_accrual_at = $8,
		    target_ratios = $9, multisig_signers = $10, multisig_threshold = $11,
		    governance_mint_id = $12, updated_at = $13
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query,
		portfolio.ID,
		string(portfolio.Owner),
		portfolio.RiskBounds.MinValue,
		portfolio.RiskBounds.MaxValue,
		portfolio.FeeState.ManagementRate,
		portfolio.FeeState.PerformanceRate,
		portfolio.FeeState.HighWaterMark,
		portfolio.FeeState.LastAccrualAt,
		targetRatios,
		signers,
		threshold,
		portfolio.GovernanceMintID,
		portfolio.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPortfolioNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE portfolio_id = $1`, portfolio.ID); err != nil {
		return fmt.Errorf("failed to clear holdings: %w", err)
	}
	return insertHoldingsTx(ctx, tx, portfolio)
}

func insertHoldingsTx(ctx context.Context, tx pgx.Tx, portfolio *models.Portfolio) error {
	for i := range portfolio.Holdings {
		h := &portfolio.Holdings[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO holdings (portfolio_id, asset_id, amount, unit_value, last_updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, portfolio.ID, string(h.AssetID), h.Amount, h.UnitValue, h.LastUpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert holding %s: %w", h.AssetID, err)
		}
	}
	return nil
}

func encodePortfolioColumns(portfolio *models.Portfolio) (targetRatios []byte, signers []string, threshold *int, err error) {
	if portfolio.TargetRatios != nil {
		targetRatios, err = json.Marshal(portfolio.TargetRatios)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode target ratios: %w", err)
		}
	}
	if portfolio.MultisigConfig != nil {
		signers = make([]string, len(portfolio.MultisigConfig.Signers))
		for i, s := range portfolio.MultisigConfig.Signers {
			signers[i] = string(s)
		}
		t := portfolio.MultisigConfig.Threshold
		threshold = &t
	}
	return targetRatios, signers, threshold, nil
}
