package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
)

func newRebalanceFixture(t *testing.T) (*RebalanceService, *mockPortfolioRepo, *mockExecutor) {
	t.Helper()
	repo := newMockPortfolioRepo()
	p := seedPortfolio(repo, "alice") // 600/400
	p.TargetRatios = models.TargetRatios{
		"token-a": decimal.RequireFromString("0.5"),
		"token-b": decimal.RequireFromString("0.5"),
	}
	executor := &mockExecutor{}
	svc := NewRebalanceService(repo, executor, types.RiskPolicyStrict,
		decimal.RequireFromString("0.05"))
	return svc, repo, executor
}

func TestRebalance_AppliesAndCommitsPlan(t *testing.T) {
	svc, repo, executor := newRebalanceFixture(t)

	result, err := svc.Rebalance(context.Background(), "alice", "p-1", nil)
	if err != nil {
		t.Fatalf("Rebalance failed: %v", err)
	}

	if len(result.Moves) != 1 {
		t.Fatalf("Expected 1 move, got %d", len(result.Moves))
	}
	if !result.Moves[0].Value.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected move value 100, got %s", result.Moves[0].Value)
	}
	if !result.TotalValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected total value unchanged at 1000, got %s", result.TotalValue)
	}
	if result.Automatic {
		t.Error("Expected manual rebalance")
	}

	stored := repo.portfolios["p-1"]
	if !stored.Holding("token-a").Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected 50 units of token-a committed, got %s", stored.Holding("token-a").Amount)
	}
	if !stored.Holding("token-b").Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected 50 units of token-b committed, got %s", stored.Holding("token-b").Amount)
	}

	if len(executor.intents) != 1 {
		t.Fatalf("Expected 1 confirmed move intent, got %d", len(executor.intents))
	}
	if !executor.intents[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected confirmed move of 100, got %s", executor.intents[0].Amount)
	}
}

func TestRebalance_FailedMoveAbortsWholePlan(t *testing.T) {
	svc, repo, executor := newRebalanceFixture(t)
	executor.shouldFail = true

	_, err := svc.Rebalance(context.Background(), "alice", "p-1", nil)
	if serviceErrorCode(err) != types.ErrCodeCollaboratorFailed {
		t.Fatalf("Expected COLLABORATOR_FAILED, got %v", err)
	}

	stored := repo.portfolios["p-1"]
	if !stored.Holding("token-a").Amount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected untouched token-a, got %s", stored.Holding("token-a").Amount)
	}
	if !stored.Holding("token-b").Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected untouched token-b, got %s", stored.Holding("token-b").Amount)
	}
}

func TestRebalance_GatedWhileViolated(t *testing.T) {
	svc, repo, _ := newRebalanceFixture(t)
	repo.portfolios["p-1"].RiskBounds.MaxValue = decimal.NewFromInt(500)

	_, err := svc.Rebalance(context.Background(), "alice", "p-1", nil)
	if serviceErrorCode(err) != types.ErrCodeRiskViolation {
		t.Errorf("Expected RISK_VIOLATION on manual rebalance while violated, got %v", err)
	}
}

func TestRebalance_NoDeviationBeyondTolerance(t *testing.T) {
	svc, _, _ := newRebalanceFixture(t)

	// A wide tolerance absorbs the 0.1 deviation.
	wide := decimal.RequireFromString("0.2")
	_, err := svc.Rebalance(context.Background(), "alice", "p-1", &wide)
	if serviceErrorCode(err) != types.ErrCodeNoRebalanceNeeded {
		t.Errorf("Expected NO_REBALANCE_NEEDED, got %v", err)
	}
}

func TestRebalance_NoTargetsConfigured(t *testing.T) {
	svc, repo, _ := newRebalanceFixture(t)
	repo.portfolios["p-1"].TargetRatios = nil

	_, err := svc.Rebalance(context.Background(), "alice", "p-1", nil)
	if serviceErrorCode(err) != types.ErrCodeInvalidRatios {
		t.Errorf("Expected INVALID_RATIOS, got %v", err)
	}
}

func TestRebalance_OwnerOnly(t *testing.T) {
	svc, _, _ := newRebalanceFixture(t)

	_, err := svc.Rebalance(context.Background(), "mallory", "p-1", nil)
	if serviceErrorCode(err) != types.ErrCodeUnauthorized {
		t.Errorf("Expected UNAUTHORIZED, got %v", err)
	}
}

func TestRebalance_NegativeToleranceRejected(t *testing.T) {
	svc, _, _ := newRebalanceFixture(t)

	bad := decimal.RequireFromString("-0.1")
	_, err := svc.Rebalance(context.Background(), "alice", "p-1", &bad)
	if serviceErrorCode(err) != types.ErrCodeInvalidInput {
		t.Errorf("Expected INVALID_INPUT, got %v", err)
	}
}

func TestAutoRebalance_OnlyWhenViolated(t *testing.T) {
	svc, repo, _ := newRebalanceFixture(t)

	// Healthy portfolio: auto path leaves it alone.
	_, err := svc.AutoRebalance(context.Background(), "p-1")
	if serviceErrorCode(err) != types.ErrCodeNoRebalanceNeeded {
		t.Fatalf("Expected NO_REBALANCE_NEEDED on healthy portfolio, got %v", err)
	}

	// Violated bounds trigger the corrective plan.
	repo.portfolios["p-1"].RiskBounds.MaxValue = decimal.NewFromInt(500)

	result, err := svc.AutoRebalance(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("AutoRebalance failed: %v", err)
	}
	if !result.Automatic {
		t.Error("Expected automatic flag set")
	}
	if len(result.Moves) != 1 {
		t.Errorf("Expected 1 move, got %d", len(result.Moves))
	}
}
