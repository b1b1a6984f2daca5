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
	"github.com/portfolio-engine/internal/types"
)

// FeeService handles management and performance fee accrual. The charged
// value leaves the portfolio through the transfer collaborator toward the
// configured fee recipient; an unconfirmed credit aborts the accrual.
type FeeService struct {
	portfolioRepo      PortfolioRepository
	executor           adapter.TransferExecutor
	riskPolicy         types.RiskPolicy
	minAccrualInterval time.Duration
	feeRecipient       string
	bonusThreshold     decimal.Decimal
	bonusRate          decimal.Decimal
	clock              func() time.Time
}

// NewFeeService creates a new fee service
func NewFeeService(
	portfolioRepo PortfolioRepository,
	executor adapter.TransferExecutor,
	riskPolicy types.RiskPolicy,
	minAccrualInterval time.Duration,
	feeRecipient string,
	bonusThreshold decimal.Decimal,
	bonusRate decimal.Decimal,
) *FeeService {
	return &FeeService{
		portfolioRepo:      portfolioRepo,
		executor:           executor,
		riskPolicy:         riskPolicy,
		minAccrualInterval: minAccrualInterval,
		feeRecipient:       feeRecipient,
		bonusThreshold:     bonusThreshold,
		bonusRate:          bonusRate,
		clock:              time.Now,
	}
}

// AccrueFeesResult reports the outcome of one accrual call
type AccrueFeesResult struct {
	Accrued        bool                       `json:"accrued"`
	ManagementFee  decimal.Decimal            `json:"managementFee"`
	PerformanceFee decimal.Decimal            `json:"performanceFee"`
	Bonus          decimal.Decimal            `json:"bonus"`
	Total          decimal.Decimal            `json:"total"`
	HighWaterMark  decimal.Decimal            `json:"highWaterMark"`
	Deductions     map[string]decimal.Decimal `json:"deductions,omitempty"`
	FeeRecipient   string                     `json:"feeRecipient"`
	AccrualAt      time.Time                  `json:"accrualAt"`
}

// AccrueFees computes and applies the fees owed since the last accrual.
// Calls inside the minimum interval are no-ops that report Accrued=false and
// leave the stored state untouched, so repeated calls are idempotent. The
// charged value is deducted pro-rata across holdings and credited to the
// configured fee recipient through the transfer collaborator; a failed
// credit aborts the whole accrual.
func (s *FeeService) AccrueFees(ctx context.Context, caller types.Identity, portfolioID string, withBonus bool) (*AccrueFeesResult, error) {
	portfolio, err := s.portfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, mapPortfolioLoadError(portfolioID, err)
	}
	if portfolio.Owner != caller {
		return nil, apperrors.NewUnauthorizedError("caller is not the portfolio owner")
	}

	now := s.clock()
	accrual := engine.ComputeFeeAccrual(portfolio, now, s.minAccrualInterval)
	if accrual == nil {
		return &AccrueFeesResult{
			Accrued:       false,
			HighWaterMark: portfolio.FeeState.HighWaterMark,
			FeeRecipient:  s.feeRecipient,
			AccrualAt:     portfolio.FeeState.LastAccrualAt,
		}, nil
	}

	if withBonus {
		engine.ApplyPerformanceBonus(accrual, portfolio.TotalValue(), s.bonusThreshold, s.bonusRate)
	}

	// Fee extraction decreases total value; gate it like any withdrawal.
	if status := engine.CheckRisk(portfolio); !engine.AllowMutation(s.riskPolicy, status, engine.EffectDecrease) {
		return nil, apperrors.NewRiskViolationError(status)
	}

	staged := portfolio.Clone()
	deductions := engine.DeductProRata(staged, accrual.Total(), now)
	staged.FeeState.HighWaterMark = accrual.NewHighWaterMark
	staged.FeeState.LastAccrualAt = accrual.AccrualAt

	// Credit the recipient asset by asset, matching the pro-rata deduction.
	// Iterate holdings rather than the map for a deterministic intent order.
	for i := range staged.Holdings {
		assetID := staged.Holdings[i].AssetID
		value, ok := deductions[string(assetID)]
		if !ok || value.IsZero() {
			continue
		}
		intent := &types.TransferIntent{
			IntentID:    uuid.New().String(),
			PortfolioID: portfolioID,
			AssetID:     assetID,
			From:        portfolioID,
			To:          s.feeRecipient,
			Amount:      value,
			Direction:   types.DirectionOut,
			Memo:        "fee accrual",
		}
		if err := s.executor.ExecuteTransfer(ctx, intent); err != nil {
			return nil, apperrors.NewCollaboratorFailedError("transfer executor", err)
		}
	}

	if err := s.portfolioRepo.Update(ctx, staged); err != nil {
		return nil, apperrors.NewDatabaseError("update portfolio", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolio_id":  portfolioID,
		"management":    accrual.ManagementFee.String(),
		"performance":   accrual.PerformanceFee.String(),
		"bonus":         accrual.PerformanceBonus.String(),
		"fee_recipient": s.feeRecipient,
	}).Info("Fees accrued")

	return &AccrueFeesResult{
		Accrued:        true,
		ManagementFee:  accrual.ManagementFee,
		PerformanceFee: accrual.PerformanceFee,
		Bonus:          accrual.PerformanceBonus,
		Total:          accrual.Total(),
		HighWaterMark:  staged.FeeState.HighWaterMark,
		Deductions:     deductions,
		FeeRecipient:   s.feeRecipient,
		AccrualAt:      accrual.AccrualAt,
	}, nil
}
