package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
)

// ErrWithdrawalNotFound is returned when no pending withdrawal exists for an id.
var ErrWithdrawalNotFound = errors.New("withdrawal request not found")

// WithdrawalRepository persists multisig withdrawal requests and their
// approval sets.
type WithdrawalRepository struct {
	db *PostgresDB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *PostgresDB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create persists a new withdrawal request
func (r *WithdrawalRepository) Create(ctx context.Context, w *models.PendingWithdrawal) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO pending_withdrawals (
			id, portfolio_id, requester, asset_id, amount, destination,
			approvals, status, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		w.ID,
		w.PortfolioID,
		string(w.Requester),
		string(w.AssetID),
		w.Amount,
		w.Destination,
		identityStrings(w.Approvals),
		string(w.Status),
		w.CreatedAt,
		w.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

// GetByID retrieves a withdrawal request by id
func (r *WithdrawalRepository) GetByID(ctx context.Context, id string) (*models.PendingWithdrawal, error) {
	query := `
		SELECT id, portfolio_id, requester, asset_id, amount, destination,
		       approvals, status, created_at, expires_at
		FROM pending_withdrawals
		WHERE id = $1
	`
	w, err := scanWithdrawal(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	return w, err
}

// Update persists the approval set and status of an existing request
func (r *WithdrawalRepository) Update(ctx context.Context, w *models.PendingWithdrawal) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return saveWithdrawalTx(ctx, tx, w)
	})
}

// SaveExecution marks a withdrawal executed and commits the debited portfolio
// in the same transaction. Either both land or neither does.
func (r *WithdrawalRepository) SaveExecution(ctx context.Context, w *models.PendingWithdrawal, portfolio *models.Portfolio) error {
	portfolio.UpdatedAt = time.Now()
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := savePortfolioTx(ctx, tx, portfolio); err != nil {
			return err
		}
		return saveWithdrawalTx(ctx, tx, w)
	})
}

// ListPending returns all requests still collecting approvals for a portfolio
func (r *WithdrawalRepository) ListPending(ctx context.Context, portfolioID string) ([]*models.PendingWithdrawal, error) {
	query := `
		SELECT id, portfolio_id, requester, asset_id, amount, destination,
		       approvals, status, created_at, expires_at
		FROM pending_withdrawals
		WHERE portfolio_id = $1 AND status = $2
		ORDER BY created_at
	`
	return r.queryWithdrawals(ctx, query, portfolioID, string(types.WithdrawalPending))
}

// ListExpired returns pending requests whose expiry time has passed.
// Used by the sweeper job.
func (r *WithdrawalRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.PendingWithdrawal, error) {
	query := `
		SELECT id, portfolio_id, requester, asset_id, amount, destination,
		       approvals, status, created_at, expires_at
		FROM pending_withdrawals
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at
	`
	return r.queryWithdrawals(ctx, query, string(types.WithdrawalPending), now)
}

func (r *WithdrawalRepository) queryWithdrawals(ctx context.Context, query string, args ...interface{}) ([]*models.PendingWithdrawal, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawal requests: %w", err)
	}
	defer rows.Close()

	var withdrawals []*models.PendingWithdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

func scanWithdrawal(row pgx.Row) (*models.PendingWithdrawal, error) {
	var w models.PendingWithdrawal
	var requester, assetID, status string
	var approvals []string

	err := row.Scan(
		&w.ID,
		&w.PortfolioID,
		&requester,
		&assetID,
		&w.Amount,
		&w.Destination,
		&approvals,
		&status,
		&w.CreatedAt,
		&w.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
	}

	w.Requester = types.Identity(requester)
	w.AssetID = types.AssetID(assetID)
	w.Status = types.WithdrawalStatus(status)
	w.Approvals = make([]types.Identity, len(approvals))
	for i, a := range approvals {
		w.Approvals[i] = types.Identity(a)
	}
	return &w, nil
}

func saveWithdrawalTx(ctx context.Context, tx pgx.Tx, w *models.PendingWithdrawal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE pending_withdrawals
		SET approvals = $2, status = $3, expires_at = $4
		WHERE id = $1
	`, w.ID, identityStrings(w.Approvals), string(w.Status), w.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

func identityStrings(ids []types.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
