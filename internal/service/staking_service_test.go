package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/types"
)

func newStakingFixture(t *testing.T) (*StakingService, *mockStakingRepo, *mockExecutor) {
	t.Helper()
	portfolioRepo := newMockPortfolioRepo()
	seedPortfolio(portfolioRepo, "alice")
	stakingRepo := newMockStakingRepo()
	executor := &mockExecutor{}
	return NewStakingService(portfolioRepo, stakingRepo, executor), stakingRepo, executor
}

func TestStake_CreatesPosition(t *testing.T) {
	svc, stakingRepo, _ := newStakingFixture(t)

	position, err := svc.Stake(context.Background(), "bob", "p-1", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Stake failed: %v", err)
	}

	if !position.StakedAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected staked 100, got %s", position.StakedAmount)
	}
	if !position.TotalStaked.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected pool total 100, got %s", position.TotalStaked)
	}
	if pool := stakingRepo.pools["p-1"]; !pool.GlobalRewardIndex.IsZero() {
		t.Error("Expected untouched reward index on first stake")
	}
}

func TestStake_UnknownPortfolio(t *testing.T) {
	svc, _, _ := newStakingFixture(t)

	_, err := svc.Stake(context.Background(), "bob", "missing", decimal.NewFromInt(100))
	if serviceErrorCode(err) != types.ErrCodePortfolioNotFound {
		t.Errorf("Expected PORTFOLIO_NOT_FOUND, got %v", err)
	}
}

func TestDistributeRewards_ProportionalShares(t *testing.T) {
	svc, _, _ := newStakingFixture(t)
	ctx := context.Background()

	// Two stakers at 100 and 300, then a 40-unit distribution:
	// the index rises by 0.1 and the shares settle to 10 and 30.
	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if _, err := svc.Stake(ctx, "carol", "p-1", decimal.NewFromInt(300)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}

	result, err := svc.DistributeRewards(ctx, "alice", "p-1", decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("DistributeRewards failed: %v", err)
	}
	if !result.IndexIncrement.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("Expected index increment 0.1, got %s", result.IndexIncrement)
	}

	bobPos, err := svc.GetPosition(ctx, "bob", "p-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !bobPos.Claimable.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected bob claimable 10, got %s", bobPos.Claimable)
	}

	carolPos, err := svc.GetPosition(ctx, "carol", "p-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !carolPos.Claimable.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected carol claimable 30, got %s", carolPos.Claimable)
	}
}

func TestDistributeRewards_LateStakerEarnsNothingRetroactively(t *testing.T) {
	svc, _, _ := newStakingFixture(t)
	ctx := context.Background()

	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if _, err := svc.DistributeRewards(ctx, "alice", "p-1", decimal.NewFromInt(50)); err != nil {
		t.Fatalf("DistributeRewards failed: %v", err)
	}

	// Carol joins after the distribution; her debt starts at the current index.
	if _, err := svc.Stake(ctx, "carol", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}

	carolPos, err := svc.GetPosition(ctx, "carol", "p-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !carolPos.Claimable.IsZero() {
		t.Errorf("Expected no retroactive rewards, got %s", carolPos.Claimable)
	}

	bobPos, _ := svc.GetPosition(ctx, "bob", "p-1")
	if !bobPos.Claimable.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected bob claimable 50, got %s", bobPos.Claimable)
	}
}

func TestDistributeRewards_EmptyPoolRejected(t *testing.T) {
	svc, _, _ := newStakingFixture(t)

	_, err := svc.DistributeRewards(context.Background(), "alice", "p-1", decimal.NewFromInt(40))
	if serviceErrorCode(err) != types.ErrCodeNoStakers {
		t.Errorf("Expected NO_STAKERS, got %v", err)
	}
}

func TestDistributeRewards_OwnerOnly(t *testing.T) {
	svc, _, _ := newStakingFixture(t)
	ctx := context.Background()

	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}

	_, err := svc.DistributeRewards(ctx, "bob", "p-1", decimal.NewFromInt(40))
	if serviceErrorCode(err) != types.ErrCodeUnauthorized {
		t.Errorf("Expected UNAUTHORIZED, got %v", err)
	}
}

func TestUnstake_SettlesBeforeReducing(t *testing.T) {
	svc, _, _ := newStakingFixture(t)
	ctx := context.Background()

	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(200)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if _, err := svc.DistributeRewards(ctx, "alice", "p-1", decimal.NewFromInt(20)); err != nil {
		t.Fatalf("DistributeRewards failed: %v", err)
	}

	position, err := svc.Unstake(ctx, "bob", "p-1", decimal.NewFromInt(150))
	if err != nil {
		t.Fatalf("Unstake failed: %v", err)
	}

	if !position.StakedAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected staked 50, got %s", position.StakedAmount)
	}
	// Rewards settled at the pre-unstake balance.
	if !position.Claimable.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected claimable 20, got %s", position.Claimable)
	}
	if !position.TotalStaked.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected pool total 50, got %s", position.TotalStaked)
	}
}

func TestUnstake_InsufficientStake(t *testing.T) {
	svc, _, _ := newStakingFixture(t)
	ctx := context.Background()

	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}

	_, err := svc.Unstake(ctx, "bob", "p-1", decimal.NewFromInt(101))
	if serviceErrorCode(err) != types.ErrCodeInsufficientStake {
		t.Errorf("Expected INSUFFICIENT_STAKE, got %v", err)
	}

	// A staker with no record at all gets the same rejection.
	_, err = svc.Unstake(ctx, "nobody", "p-1", decimal.NewFromInt(1))
	if serviceErrorCode(err) != types.ErrCodeInsufficientStake {
		t.Errorf("Expected INSUFFICIENT_STAKE for unknown staker, got %v", err)
	}
}

func TestClaim_ZeroesClaimable(t *testing.T) {
	svc, stakingRepo, _ := newStakingFixture(t)
	ctx := context.Background()

	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if _, err := svc.DistributeRewards(ctx, "alice", "p-1", decimal.NewFromInt(40)); err != nil {
		t.Fatalf("DistributeRewards failed: %v", err)
	}

	result, err := svc.Claim(ctx, "bob", "p-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !result.Claimed.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected claimed 40, got %s", result.Claimed)
	}

	record := stakingRepo.records[stakeKey{"p-1", "bob"}]
	if !record.Claimable.IsZero() {
		t.Errorf("Expected claimable zeroed, got %s", record.Claimable)
	}

	// A second claim pays nothing.
	again, err := svc.Claim(ctx, "bob", "p-1")
	if err != nil {
		t.Fatalf("Second claim failed: %v", err)
	}
	if !again.Claimed.IsZero() {
		t.Errorf("Expected nothing on second claim, got %s", again.Claimed)
	}
}

func TestUnstake_FullUnwindRemovesRecord(t *testing.T) {
	svc, stakingRepo, _ := newStakingFixture(t)
	ctx := context.Background()

	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if _, err := svc.DistributeRewards(ctx, "alice", "p-1", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("DistributeRewards failed: %v", err)
	}

	// Unwinding the stake keeps the record while rewards are unclaimed.
	if _, err := svc.Unstake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Unstake failed: %v", err)
	}
	if _, ok := stakingRepo.records[stakeKey{"p-1", "bob"}]; !ok {
		t.Fatal("Expected record retained while claimable is non-zero")
	}

	// Claiming the last rewards removes the record entirely.
	if _, err := svc.Claim(ctx, "bob", "p-1"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if _, ok := stakingRepo.records[stakeKey{"p-1", "bob"}]; ok {
		t.Error("Expected fully unwound record deleted")
	}
}

func TestClaim_PaysOutThroughExecutor(t *testing.T) {
	svc, _, executor := newStakingFixture(t)
	ctx := context.Background()

	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if _, err := svc.DistributeRewards(ctx, "alice", "p-1", decimal.NewFromInt(40)); err != nil {
		t.Fatalf("DistributeRewards failed: %v", err)
	}

	if _, err := svc.Claim(ctx, "bob", "p-1"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	if len(executor.intents) != 1 {
		t.Fatalf("Expected 1 confirmed payout intent, got %d", len(executor.intents))
	}
	intent := executor.intents[0]
	if !intent.Amount.Equal(decimal.NewFromInt(40)) || intent.To != "bob" {
		t.Errorf("Expected 40 paid to bob, got %s to %s", intent.Amount, intent.To)
	}

	// A claim with nothing settled emits no intent.
	if _, err := svc.Claim(ctx, "bob", "p-1"); err != nil {
		t.Fatalf("Second claim failed: %v", err)
	}
	if len(executor.intents) != 1 {
		t.Errorf("Expected no intent for an empty claim, got %d", len(executor.intents))
	}
}

func TestClaim_FailedPayoutKeepsClaimable(t *testing.T) {
	svc, _, executor := newStakingFixture(t)
	ctx := context.Background()

	if _, err := svc.Stake(ctx, "bob", "p-1", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Stake failed: %v", err)
	}
	if _, err := svc.DistributeRewards(ctx, "alice", "p-1", decimal.NewFromInt(40)); err != nil {
		t.Fatalf("DistributeRewards failed: %v", err)
	}

	executor.shouldFail = true
	_, err := svc.Claim(ctx, "bob", "p-1")
	if serviceErrorCode(err) != types.ErrCodeCollaboratorFailed {
		t.Fatalf("Expected COLLABORATOR_FAILED, got %v", err)
	}

	position, err := svc.GetPosition(ctx, "bob", "p-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !position.Claimable.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected claimable 40 after failed payout, got %s", position.Claimable)
	}
}

func TestGetPosition_UnknownStaker(t *testing.T) {
	svc, _, _ := newStakingFixture(t)

	position, err := svc.GetPosition(context.Background(), "nobody", "p-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !position.StakedAmount.IsZero() || !position.Claimable.IsZero() {
		t.Error("Expected empty position for unknown staker")
	}
}
