package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
)

// ErrStakeNotFound is returned when a staker has no record in the pool.
var ErrStakeNotFound = errors.New("stake record not found")

// StakingRepository persists staking pools and per-staker records.
// Stake and unstake touch both the pool aggregate and one record, so those
// writes go through SaveStake which commits both in one transaction.
type StakingRepository struct {
	db *PostgresDB
}

// NewStakingRepository creates a new staking repository
func NewStakingRepository(db *PostgresDB) *StakingRepository {
	return &StakingRepository{db: db}
}

// GetPool returns the staking pool for a portfolio. A portfolio that has
// never seen a stake gets a zero-valued pool rather than an error.
func (r *StakingRepository) GetPool(ctx context.Context, portfolioID string) (*models.StakingPool, error) {
	query := `
		SELECT portfolio_id, total_staked, global_reward_index, updated_at
		FROM staking_pools
		WHERE portfolio_id = $1
	`

	var pool models.StakingPool
	err := r.db.Pool().QueryRow(ctx, query, portfolioID).Scan(
		&pool.PortfolioID,
		&pool.TotalStaked,
		&pool.GlobalRewardIndex,
		&pool.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.StakingPool{PortfolioID: portfolioID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staking pool: %w", err)
	}
	return &pool, nil
}

// GetRecord returns one staker's record, or ErrStakeNotFound
func (r *StakingRepository) GetRecord(ctx context.Context, portfolioID string, staker types.Identity) (*models.StakeRecord, error) {
	query := `
		SELECT portfolio_id, staker_id, staked_amount, reward_debt, claimable, created_at, updated_at
		FROM stake_records
		WHERE portfolio_id = $1 AND staker_id = $2
	`

	var record models.StakeRecord
	var stakerID string
	err := r.db.Pool().QueryRow(ctx, query, portfolioID, string(staker)).Scan(
		&record.PortfolioID,
		&stakerID,
		&record.StakedAmount,
		&record.RewardDebt,
		&record.Claimable,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStakeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stake record: %w", err)
	}
	record.StakerID = types.Identity(stakerID)
	return &record, nil
}

// SaveStake upserts the pool aggregate and one staker record together.
// A record with zero staked amount and zero claimable balance is deleted
// instead of upserted.
func (r *StakingRepository) SaveStake(ctx context.Context, pool *models.StakingPool, record *models.StakeRecord) error {
	now := time.Now()
	pool.UpdatedAt = now
	record.UpdatedAt = now

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := savePoolTx(ctx, tx, pool); err != nil {
			return err
		}
		if record.StakedAmount.IsZero() && record.Claimable.IsZero() {
			_, err := tx.Exec(ctx,
				`DELETE FROM stake_records WHERE portfolio_id = $1 AND staker_id = $2`,
				record.PortfolioID, string(record.StakerID))
			if err != nil {
				return fmt.Errorf("failed to delete stake record: %w", err)
			}
			return nil
		}
		return saveRecordTx(ctx, tx, record)
	})
}

// SavePool upserts only the pool aggregate. Used by reward distribution,
// which bumps the global index without touching any record.
func (r *StakingRepository) SavePool(ctx context.Context, pool *models.StakingPool) error {
	pool.UpdatedAt = time.Now()
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return savePoolTx(ctx, tx, pool)
	})
}

// ListRecords returns all stake records for a portfolio ordered by staker id
func (r *StakingRepository) ListRecords(ctx context.Context, portfolioID string) ([]*models.StakeRecord, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT portfolio_id, staker_id, staked_amount, reward_debt, claimable, created_at, updated_at
		FROM stake_records
		WHERE portfolio_id = $1
		ORDER BY staker_id
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stake records: %w", err)
	}
	defer rows.Close()

	var records []*models.StakeRecord
	for rows.Next() {
		var record models.StakeRecord
		var stakerID string
		if err := rows.Scan(
			&record.PortfolioID,
			&stakerID,
			&record.StakedAmount,
			&record.RewardDebt,
			&record.Claimable,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stake record: %w", err)
		}
		record.StakerID = types.Identity(stakerID)
		records = append(records, &record)
	}
	return records, rows.Err()
}

func savePoolTx(ctx context.Context, tx pgx.Tx, pool *models.StakingPool) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO staking_pools (portfolio_id, total_staked, global_reward_index, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (portfolio_id) DO UPDATE
		SET total_staked = EXCLUDED.total_staked,
		    global_reward_index = EXCLUDED.global_reward_index,
		    updated_at = EXCLUDED.updated_at
	`, pool.PortfolioID, pool.TotalStaked, pool.GlobalRewardIndex, pool.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save staking pool: %w", err)
	}
	return nil
}

func saveRecordTx(ctx context.Context, tx pgx.Tx, record *models.StakeRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO stake_records (portfolio_id, staker_id, staked_amount, reward_debt, claimable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (portfolio_id, staker_id) DO UPDATE
		SET staked_amount = EXCLUDED.staked_amount,
		    reward_debt = EXCLUDED.reward_debt,
		    claimable = EXCLUDED.claimable,
		    updated_at = EXCLUDED.updated_at
	`, record.PortfolioID, string(record.StakerID), record.StakedAmount,
		record.RewardDebt, record.Claimable, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save stake record: %w", err)
	}
	return nil
}
