package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/adapter"
	"github.com/portfolio-engine/internal/engine"
	apperrors "github.com/portfolio-engine/internal/errors"
	"github.com/portfolio-engine/internal/logging"
	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
)

// RebalanceService plans and applies corrective moves toward target ratios.
// Every move in a plan is confirmed by the transfer collaborator before the
// ledger commits; one unconfirmed move aborts the whole plan.
type RebalanceService struct {
	portfolioRepo    PortfolioRepository
	executor         adapter.TransferExecutor
	riskPolicy       types.RiskPolicy
	defaultTolerance decimal.Decimal
}

// NewRebalanceService creates a new rebalance service
func NewRebalanceService(
	portfolioRepo PortfolioRepository,
	executor adapter.TransferExecutor,
	riskPolicy types.RiskPolicy,
	defaultTolerance decimal.Decimal,
) *RebalanceService {
	return &RebalanceService{
		portfolioRepo:    portfolioRepo,
		executor:         executor,
		riskPolicy:       riskPolicy,
		defaultTolerance: defaultTolerance,
	}
}

// RebalanceResult reports the applied plan
type RebalanceResult struct {
	Moves      []engine.RebalanceMove `json:"moves"`
	Tolerance  decimal.Decimal        `json:"tolerance"`
	TotalValue decimal.Decimal        `json:"totalValue"`
	Automatic  bool                   `json:"automatic"`
}

// Rebalance plans and applies value-neutral corrective moves. A nil tolerance
// falls back to the configured default. When every asset is already within
// tolerance the call fails with a no-rebalance-needed error and nothing is
// committed. Manual rebalancing is gated by the risk policy like any other
// mutation; AutoRebalance is the sanctioned corrective path while violated.
func (s *RebalanceService) Rebalance(ctx context.Context, caller types.Identity, portfolioID string, tolerance *decimal.Decimal) (*RebalanceResult, error) {
	portfolio, err := s.portfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, mapPortfolioLoadError(portfolioID, err)
	}
	if portfolio.Owner != caller {
		return nil, apperrors.NewUnauthorizedError("caller is not the portfolio owner")
	}

	if status := engine.CheckRisk(portfolio); !engine.AllowMutation(s.riskPolicy, status, engine.EffectNeutral) {
		return nil, apperrors.NewRiskViolationError(status)
	}

	tol := s.defaultTolerance
	if tolerance != nil {
		if tolerance.IsNegative() {
			return nil, apperrors.NewInvalidParameterError("tolerance", "must not be negative")
		}
		tol = *tolerance
	}

	return s.rebalance(ctx, portfolio, tol, false)
}

// AutoRebalance applies the default-tolerance plan only when the portfolio's
// risk bounds are violated; a healthy portfolio is left alone.
func (s *RebalanceService) AutoRebalance(ctx context.Context, portfolioID string) (*RebalanceResult, error) {
	portfolio, err := s.portfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, mapPortfolioLoadError(portfolioID, err)
	}

	if !engine.CheckRisk(portfolio).Violated() {
		return nil, apperrors.NewNoRebalanceNeededError(s.defaultTolerance.String())
	}

	return s.rebalance(ctx, portfolio, s.defaultTolerance, true)
}

func (s *RebalanceService) rebalance(ctx context.Context, portfolio *models.Portfolio, tolerance decimal.Decimal, automatic bool) (*RebalanceResult, error) {
	if len(portfolio.TargetRatios) == 0 {
		return nil, apperrors.NewInvalidRatiosError("portfolio has no target ratios configured")
	}

	moves := engine.PlanRebalance(portfolio, tolerance)
	if len(moves) == 0 {
		return nil, apperrors.NewNoRebalanceNeededError(tolerance.String())
	}

	staged := portfolio.Clone()
	engine.ApplyMoves(staged, moves, time.Now())

	// Confirm the full move sequence before anything lands in the ledger.
	for _, move := range moves {
		intent := &types.TransferIntent{
			IntentID:    uuid.New().String(),
			PortfolioID: portfolio.ID,
			AssetID:     move.SellAsset,
			From:        string(move.SellAsset),
			To:          string(move.BuyAsset),
			Amount:      move.Value,
			Direction:   types.DirectionOut,
			Memo:        "rebalance",
		}
		if err := s.executor.ExecuteTransfer(ctx, intent); err != nil {
			return nil, apperrors.NewCollaboratorFailedError("transfer executor", err)
		}
	}

	if err := s.portfolioRepo.Update(ctx, staged); err != nil {
		return nil, apperrors.NewDatabaseError("update portfolio", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolio_id": portfolio.ID,
		"moves":        len(moves),
		"automatic":    automatic,
	}).Info("Portfolio rebalanced")

	return &RebalanceResult{
		Moves:      moves,
		Tolerance:  tolerance,
		TotalValue: staged.TotalValue(),
		Automatic:  automatic,
	}, nil
}
