package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/adapter"
	apperrors "github.com/portfolio-engine/internal/errors"
	"github.com/portfolio-engine/internal/logging"
	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/storage"
	"github.com/portfolio-engine/internal/types"
)

// StakingRepository interface for staking persistence
type StakingRepository interface {
	GetPool(ctx context.Context, portfolioID string) (*models.StakingPool, error)
	GetRecord(ctx context.Context, portfolioID string, staker types.Identity) (*models.StakeRecord, error)
	SaveStake(ctx context.Context, pool *models.StakingPool, record *models.StakeRecord) error
	SavePool(ctx context.Context, pool *models.StakingPool) error
	ListRecords(ctx context.Context, portfolioID string) ([]*models.StakeRecord, error)
}

// StakingService handles the per-portfolio staking pool. Reward distribution
// is O(1): it bumps the pool's global reward index, and each staker's share
// is settled lazily on their next interaction.
type StakingService struct {
	portfolioRepo PortfolioRepository
	stakingRepo   StakingRepository
	executor      adapter.TransferExecutor
}

// NewStakingService creates a new staking service
func NewStakingService(portfolioRepo PortfolioRepository, stakingRepo StakingRepository, executor adapter.TransferExecutor) *StakingService {
	return &StakingService{
		portfolioRepo: portfolioRepo,
		stakingRepo:   stakingRepo,
		executor:      executor,
	}
}

// StakePosition reports one staker's settled view of the pool
type StakePosition struct {
	PortfolioID  string          `json:"portfolioId"`
	StakerID     types.Identity  `json:"stakerId"`
	StakedAmount decimal.Decimal `json:"stakedAmount"`
	Claimable    decimal.Decimal `json:"claimable"`
	TotalStaked  decimal.Decimal `json:"totalStaked"`
}

// DistributeResult reports the outcome of a reward distribution
type DistributeResult struct {
	PortfolioID    string          `json:"portfolioId"`
	Reward         decimal.Decimal `json:"reward"`
	TotalStaked    decimal.Decimal `json:"totalStaked"`
	IndexIncrement decimal.Decimal `json:"indexIncrement"`
	NewIndex       decimal.Decimal `json:"newIndex"`
}

// ClaimResult reports a paid-out claim
type ClaimResult struct {
	PortfolioID string          `json:"portfolioId"`
	StakerID    types.Identity  `json:"stakerId"`
	Claimed     decimal.Decimal `json:"claimed"`
}

// Stake adds amount to the caller's position. Pending rewards are settled at
// the pre-stake balance before the position grows, so the new amount earns
// nothing from past distributions.
func (s *StakingService) Stake(ctx context.Context, staker types.Identity, portfolioID string, amount decimal.Decimal) (*StakePosition, error) {
	if amount.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}
	if err := s.ensurePortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	pool, err := s.stakingRepo.GetPool(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get staking pool", err)
	}

	record, err := s.loadOrInitRecord(ctx, portfolioID, staker, pool.GlobalRewardIndex)
	if err != nil {
		return nil, err
	}

	staged := record.Clone()
	stagedPool := pool.Clone()
	staged.Settle(stagedPool.GlobalRewardIndex)
	staged.StakedAmount = staged.StakedAmount.Add(amount)
	stagedPool.TotalStaked = stagedPool.TotalStaked.Add(amount)

	if err := s.stakingRepo.SaveStake(ctx, stagedPool, staged); err != nil {
		return nil, apperrors.NewDatabaseError("save stake", err)
	}

	return s.position(stagedPool, staged), nil
}

// Unstake removes amount from the caller's position after settling rewards
func (s *StakingService) Unstake(ctx context.Context, staker types.Identity, portfolioID string, amount decimal.Decimal) (*StakePosition, error) {
	if amount.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}

	pool, err := s.stakingRepo.GetPool(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get staking pool", err)
	}

	record, err := s.stakingRepo.GetRecord(ctx, portfolioID, staker)
	if err != nil {
		if errors.Is(err, storage.ErrStakeNotFound) {
			return nil, apperrors.NewInsufficientStakeError("0", amount.String())
		}
		return nil, apperrors.NewDatabaseError("get stake record", err)
	}

	if record.StakedAmount.LessThan(amount) {
		return nil, apperrors.NewInsufficientStakeError(record.StakedAmount.String(), amount.String())
	}

	staged := record.Clone()
	stagedPool := pool.Clone()
	staged.Settle(stagedPool.GlobalRewardIndex)
	staged.StakedAmount = staged.StakedAmount.Sub(amount)
	stagedPool.TotalStaked = stagedPool.TotalStaked.Sub(amount)

	if err := s.stakingRepo.SaveStake(ctx, stagedPool, staged); err != nil {
		return nil, apperrors.NewDatabaseError("save stake", err)
	}

	return s.position(stagedPool, staged), nil
}

// DistributeRewards spreads reward across all stakers proportionally by
// bumping the global reward index. Distribution to an empty pool is rejected.
func (s *StakingService) DistributeRewards(ctx context.Context, caller types.Identity, portfolioID string, reward decimal.Decimal) (*DistributeResult, error) {
	if reward.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("reward", "must be positive")
	}

	portfolio, err := s.portfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, mapPortfolioLoadError(portfolioID, err)
	}
	if portfolio.Owner != caller {
		return nil, apperrors.NewUnauthorizedError("caller is not the portfolio owner")
	}

	pool, err := s.stakingRepo.GetPool(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get staking pool", err)
	}
	if pool.TotalStaked.IsZero() {
		return nil, apperrors.NewNoStakersError()
	}

	staged := pool.Clone()
	increment := reward.Div(staged.TotalStaked)
	staged.GlobalRewardIndex = staged.GlobalRewardIndex.Add(increment)

	if err := s.stakingRepo.SavePool(ctx, staged); err != nil {
		return nil, apperrors.NewDatabaseError("save staking pool", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"reward":       reward.String(),
		"new_index":    staged.GlobalRewardIndex.String(),
	}).Info("Rewards distributed")

	return &DistributeResult{
		PortfolioID:    portfolioID,
		Reward:         reward,
		TotalStaked:    staged.TotalStaked,
		IndexIncrement: increment,
		NewIndex:       staged.GlobalRewardIndex,
	}, nil
}

// Claim settles and pays out the caller's claimable rewards. The payout
// goes through the transfer collaborator; an unconfirmed payout leaves the
// claimable balance intact.
func (s *StakingService) Claim(ctx context.Context, staker types.Identity, portfolioID string) (*ClaimResult, error) {
	pool, err := s.stakingRepo.GetPool(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get staking pool", err)
	}

	record, err := s.stakingRepo.GetRecord(ctx, portfolioID, staker)
	if err != nil {
		if errors.Is(err, storage.ErrStakeNotFound) {
			return nil, apperrors.NewInsufficientStakeError("0", "0")
		}
		return nil, apperrors.NewDatabaseError("get stake record", err)
	}

	staged := record.Clone()
	staged.Settle(pool.GlobalRewardIndex)
	claimed := staged.Claimable
	staged.Claimable = decimal.Zero

	if claimed.Sign() > 0 {
		intent := &types.TransferIntent{
			IntentID:    uuid.New().String(),
			PortfolioID: portfolioID,
			From:        portfolioID,
			To:          string(staker),
			Amount:      claimed,
			Direction:   types.DirectionOut,
			Memo:        "reward claim",
		}
		if err := s.executor.ExecuteTransfer(ctx, intent); err != nil {
			return nil, apperrors.NewCollaboratorFailedError("transfer executor", err)
		}
	}

	if err := s.stakingRepo.SaveStake(ctx, pool.Clone(), staged); err != nil {
		return nil, apperrors.NewDatabaseError("save stake", err)
	}

	return &ClaimResult{
		PortfolioID: portfolioID,
		StakerID:    staker,
		Claimed:     claimed,
	}, nil
}

// GetPosition returns the caller's settled position without mutating state
func (s *StakingService) GetPosition(ctx context.Context, staker types.Identity, portfolioID string) (*StakePosition, error) {
	pool, err := s.stakingRepo.GetPool(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get staking pool", err)
	}

	record, err := s.stakingRepo.GetRecord(ctx, portfolioID, staker)
	if err != nil {
		if errors.Is(err, storage.ErrStakeNotFound) {
			return &StakePosition{
				PortfolioID: portfolioID,
				StakerID:    staker,
				TotalStaked: pool.TotalStaked,
			}, nil
		}
		return nil, apperrors.NewDatabaseError("get stake record", err)
	}

	return &StakePosition{
		PortfolioID:  portfolioID,
		StakerID:     staker,
		StakedAmount: record.StakedAmount,
		Claimable:    record.Claimable.Add(record.PendingRewards(pool.GlobalRewardIndex)),
		TotalStaked:  pool.TotalStaked,
	}, nil
}

func (s *StakingService) ensurePortfolio(ctx context.Context, portfolioID string) error {
	if _, err := s.portfolioRepo.GetByID(ctx, portfolioID); err != nil {
		return mapPortfolioLoadError(portfolioID, err)
	}
	return nil
}

func (s *StakingService) loadOrInitRecord(ctx context.Context, portfolioID string, staker types.Identity, index decimal.Decimal) (*models.StakeRecord, error) {
	record, err := s.stakingRepo.GetRecord(ctx, portfolioID, staker)
	if errors.Is(err, storage.ErrStakeNotFound) {
		return &models.StakeRecord{
			PortfolioID: portfolioID,
			StakerID:    staker,
			RewardDebt:  index,
			CreatedAt:   time.Now(),
		}, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get stake record", err)
	}
	return record, nil
}

func (s *StakingService) position(pool *models.StakingPool, record *models.StakeRecord) *StakePosition {
	return &StakePosition{
		PortfolioID:  record.PortfolioID,
		StakerID:     record.StakerID,
		StakedAmount: record.StakedAmount,
		Claimable:    record.Claimable,
		TotalStaked:  pool.TotalStaked,
	}
}
