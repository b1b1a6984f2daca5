package models

import (
	"time"

	"github.com/portfolio-engine/internal/types"
	"github.com/shopspring/decimal"
)

// StakingPool holds the aggregate staking state for one portfolio.
// Rewards are distributed by bumping GlobalRewardIndex once per distribution;
// per-staker settlement is deferred to each staker's next interaction.
type StakingPool struct {
	PortfolioID       string          `json:"portfolioId" db:"portfolio_id"`
	TotalStaked       decimal.Decimal `json:"totalStaked" db:"total_staked"`
	GlobalRewardIndex decimal.Decimal `json:"globalRewardIndex" db:"global_reward_index"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// StakeRecord holds one staker's position in a portfolio's staking pool.
// RewardDebt is the value of the global reward index at the staker's last
// interaction; pending rewards are StakedAmount * (index - RewardDebt).
type StakeRecord struct {
	PortfolioID  string          `json:"portfolioId" db:"portfolio_id"`
	StakerID     types.Identity  `json:"stakerId" db:"staker_id"`
	StakedAmount decimal.Decimal `json:"stakedAmount" db:"staked_amount"`
	RewardDebt   decimal.Decimal `json:"rewardDebt" db:"reward_debt"`
	Claimable    decimal.Decimal `json:"claimable" db:"claimable"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

// PendingRewards returns the staker's unsettled share of the reward index
func (r *StakeRecord) PendingRewards(globalIndex decimal.Decimal) decimal.Decimal {
	return r.StakedAmount.Mul(globalIndex.Sub(r.RewardDebt))
}

// Settle folds pending rewards into the claimable balance and resets the
// reward debt to the current index. Must run before any stake mutation.
func (r *StakeRecord) Settle(globalIndex decimal.Decimal) {
	r.Claimable = r.Claimable.Add(r.PendingRewards(globalIndex))
	r.RewardDebt = globalIndex
}

// Clone returns a copy of the stake record
func (r *StakeRecord) Clone() *StakeRecord {
	cp := *r
	return &cp
}

// Clone returns a copy of the staking pool
func (p *StakingPool) Clone() *StakingPool {
	cp := *p
	return &cp
}
