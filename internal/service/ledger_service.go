// Package service implements the portfolio engine's operations. Every
// mutating operation follows the same shape: load the portfolio, stage a
// clone, validate and mutate the clone, confirm collaborators, and commit the
// clone through the repository. Failures on any step leave the stored state
// untouched.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/adapter"
	"github.com/portfolio-engine/internal/engine"
	apperrors "github.com/portfolio-engine/internal/errors"
	"github.com/portfolio-engine/internal/logging"
	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/storage"
	"github.com/portfolio-engine/internal/types"
)

// Repository interfaces for dependency injection

// PortfolioRepository interface for portfolio persistence
type PortfolioRepository interface {
	Create(ctx context.Context, portfolio *models.Portfolio) error
	GetByID(ctx context.Context, id string) (*models.Portfolio, error)
	Update(ctx context.Context, portfolio *models.Portfolio) error
	ListByOwner(ctx context.Context, owner types.Identity) ([]string, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// PriceCache interface for short-lived oracle price caching
type PriceCache interface {
	GetUnitValue(ctx context.Context, assetID types.AssetID) (decimal.Decimal, error)
	SetUnitValue(ctx context.Context, assetID types.AssetID, value decimal.Decimal) error
}

// LedgerService handles portfolio lifecycle and asset-level mutations
type LedgerService struct {
	portfolioRepo PortfolioRepository
	executor      adapter.TransferExecutor
	oracle        adapter.PriceOracle
	priceCache    PriceCache
	riskPolicy    types.RiskPolicy
	flashFeeRate  decimal.Decimal
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	portfolioRepo PortfolioRepository,
	executor adapter.TransferExecutor,
	oracle adapter.PriceOracle,
	priceCache PriceCache,
	riskPolicy types.RiskPolicy,
	flashFeeRate decimal.Decimal,
) *LedgerService {
	return &LedgerService{
		portfolioRepo: portfolioRepo,
		executor:      executor,
		oracle:        oracle,
		priceCache:    priceCache,
		riskPolicy:    riskPolicy,
		flashFeeRate:  flashFeeRate,
	}
}

// Input types

// InitializePortfolioInput represents input for creating a portfolio
type InitializePortfolioInput struct {
	Owner           types.Identity         `json:"owner"`
	MinValue        decimal.Decimal        `json:"minValue"`
	MaxValue        decimal.Decimal        `json:"maxValue"`
	ManagementRate  decimal.Decimal        `json:"managementRate"`
	PerformanceRate decimal.Decimal        `json:"performanceRate"`
	TargetRatios    models.TargetRatios    `json:"targetRatios,omitempty"`
	Multisig        *models.MultisigConfig `json:"multisig,omitempty"`
}

// AddAssetInput represents input for registering a new asset
type AddAssetInput struct {
	AssetID   types.AssetID   `json:"assetId"`
	Amount    decimal.Decimal `json:"amount"`
	UnitValue decimal.Decimal `json:"unitValue"`
}

// TransferInput represents input for an inbound or outbound transfer
type TransferInput struct {
	AssetID      types.AssetID           `json:"assetId"`
	Amount       decimal.Decimal         `json:"amount"`
	Direction    types.TransferDirection `json:"direction"`
	Counterparty string                  `json:"counterparty"`
	Memo         string                  `json:"memo,omitempty"`
}

// WithdrawInput represents input for a direct withdrawal
type WithdrawInput struct {
	AssetID     types.AssetID   `json:"assetId"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

// FlashLoanInput represents input for a flash loan
type FlashLoanInput struct {
	AssetID types.AssetID   `json:"assetId"`
	Amount  decimal.Decimal `json:"amount"`
}

// FlashLoanResult reports the fee earned by a completed flash loan
type FlashLoanResult struct {
	AssetID   types.AssetID   `json:"assetId"`
	Borrowed  decimal.Decimal `json:"borrowed"`
	Fee       decimal.Decimal `json:"fee"`
	NewAmount decimal.Decimal `json:"newAmount"`
}

// InitializePortfolio creates an empty portfolio with risk bounds and fee
// configuration. The high-water mark starts at zero and the accrual clock at
// creation time.
func (s *LedgerService) InitializePortfolio(ctx context.Context, input *InitializePortfolioInput) (*models.Portfolio, error) {
	if input.Owner == "" {
		return nil, apperrors.NewInvalidParameterError("owner", "must not be empty")
	}
	if input.MinValue.IsNegative() {
		return nil, apperrors.NewInvalidParameterError("minValue", "must not be negative")
	}
	if input.MaxValue.LessThan(input.MinValue) {
		return nil, apperrors.NewInvalidParameterError("maxValue", "must not be below minValue")
	}
	if input.ManagementRate.IsNegative() || input.PerformanceRate.IsNegative() {
		return nil, apperrors.NewInvalidParameterError("feeRates", "must not be negative")
	}
	if input.TargetRatios != nil {
		if err := validateTargetRatios(input.TargetRatios); err != nil {
			return nil, err
		}
	}
	if input.Multisig != nil {
		if err := validateMultisig(input.Multisig); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	portfolio := &models.Portfolio{
		ID:    uuid.New().String(),
		Owner: input.Owner,
		RiskBounds: models.RiskBounds{
			MinValue: input.MinValue,
			MaxValue: input.MaxValue,
		},
		FeeState: models.FeeState{
			ManagementRate:  input.ManagementRate,
			PerformanceRate: input.PerformanceRate,
			HighWaterMark:   decimal.Zero,
			LastAccrualAt:   now,
		},
		TargetRatios:   input.TargetRatios,
		MultisigConfig: input.Multisig,
	}

	if err := s.portfolioRepo.Create(ctx, portfolio); err != nil {
		return nil, apperrors.NewDatabaseError("create portfolio", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolio_id": portfolio.ID,
		"owner":        string(portfolio.Owner),
	}).Info("Portfolio initialized")

	return portfolio, nil
}

// GetPortfolio returns a portfolio by id
func (s *LedgerService) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	return s.loadPortfolio(ctx, id)
}

// RiskReport describes a portfolio's standing against its risk bounds
type RiskReport struct {
	PortfolioID string           `json:"portfolioId"`
	Status      types.RiskStatus `json:"status"`
	TotalValue  decimal.Decimal  `json:"totalValue"`
	MinValue    decimal.Decimal  `json:"minValue"`
	MaxValue    decimal.Decimal  `json:"maxValue"`
}

// CheckRisk reports whether the portfolio's total value sits within its
// configured bounds. Read-only.
func (s *LedgerService) CheckRisk(ctx context.Context, id string) (*RiskReport, error) {
	portfolio, err := s.loadPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RiskReport{
		PortfolioID: portfolio.ID,
		Status:      engine.CheckRisk(portfolio),
		TotalValue:  portfolio.TotalValue(),
		MinValue:    portfolio.RiskBounds.MinValue,
		MaxValue:    portfolio.RiskBounds.MaxValue,
	}, nil
}

// ListPortfolios returns the ids of all portfolios owned by an identity
func (s *LedgerService) ListPortfolios(ctx context.Context, owner types.Identity) ([]string, error) {
	ids, err := s.portfolioRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list portfolios", err)
	}
	return ids, nil
}

// AddAsset registers a new asset with an initial amount and unit value.
// Registering an asset id twice is rejected; adding value to an existing
// asset goes through Transfer instead.
func (s *LedgerService) AddAsset(ctx context.Context, caller types.Identity, portfolioID string, input *AddAssetInput) (*models.Portfolio, error) {
	if input.AssetID == "" {
		return nil, apperrors.NewInvalidParameterError("assetId", "must not be empty")
	}
	if input.Amount.IsNegative() || input.UnitValue.IsNegative() {
		return nil, apperrors.NewInvalidParameterError("amount", "amount and unit value must not be negative")
	}

	portfolio, err := s.loadOwned(ctx, caller, portfolioID)
	if err != nil {
		return nil, err
	}

	if portfolio.Holding(input.AssetID) != nil {
		return nil, apperrors.NewDuplicateAssetError(input.AssetID)
	}

	if !engine.AllowMutation(s.riskPolicy, engine.CheckRisk(portfolio), engine.EffectIncrease) {
		return nil, apperrors.NewRiskViolationError(engine.CheckRisk(portfolio))
	}

	staged := portfolio.Clone()
	staged.Holdings = append(staged.Holdings, models.Holding{
		AssetID:       input.AssetID,
		Amount:        input.Amount,
		UnitValue:     input.UnitValue,
		LastUpdatedAt: time.Now(),
	})

	if err := s.commit(ctx, staged); err != nil {
		return nil, err
	}
	return staged, nil
}

// UpdateValue sets the unit value of an asset. Value updates reflect market
// reality and are never gated by risk status.
func (s *LedgerService) UpdateValue(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID, unitValue decimal.Decimal) (*models.Portfolio, error) {
	if unitValue.IsNegative() {
		return nil, apperrors.NewInvalidParameterError("unitValue", "must not be negative")
	}

	portfolio, err := s.loadOwned(ctx, caller, portfolioID)
	if err != nil {
		return nil, err
	}

	staged := portfolio.Clone()
	holding := staged.Holding(assetID)
	if holding == nil {
		return nil, apperrors.NewUnknownAssetError(assetID)
	}
	holding.UnitValue = unitValue
	holding.LastUpdatedAt = time.Now()

	if err := s.commit(ctx, staged); err != nil {
		return nil, err
	}
	return staged, nil
}

// RefreshValue fetches the asset's unit value from the price oracle, going
// through the cache first, and applies it like a manual update.
func (s *LedgerService) RefreshValue(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID) (*models.Portfolio, error) {
	value, err := s.priceCache.GetUnitValue(ctx, assetID)
	if err != nil {
		value, err = s.oracle.GetValue(ctx, assetID)
		if err != nil {
			return nil, apperrors.NewCollaboratorFailedError("price oracle", err)
		}
		if cacheErr := s.priceCache.SetUnitValue(ctx, assetID, value); cacheErr != nil {
			logging.FromContext(ctx).WithField("asset_id", string(assetID)).
				Warn("Failed to cache oracle price: " + cacheErr.Error())
		}
	}

	return s.UpdateValue(ctx, caller, portfolioID, assetID, value)
}

// Transfer moves amount into or out of an existing holding. Outbound
// transfers are confirmed by the transfer executor before the debit commits;
// a rejected execution leaves the stored portfolio untouched.
func (s *LedgerService) Transfer(ctx context.Context, caller types.Identity, portfolioID string, input *TransferInput) (*models.Portfolio, error) {
	if input.Amount.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}
	if input.Direction != types.DirectionIn && input.Direction != types.DirectionOut {
		return nil, apperrors.NewInvalidParameterError("direction", "must be 'in' or 'out'")
	}

	portfolio, err := s.loadOwned(ctx, caller, portfolioID)
	if err != nil {
		return nil, err
	}

	effect := engine.EffectIncrease
	if input.Direction == types.DirectionOut {
		effect = engine.EffectDecrease
	}
	if status := engine.CheckRisk(portfolio); !engine.AllowMutation(s.riskPolicy, status, effect) {
		return nil, apperrors.NewRiskViolationError(status)
	}

	staged := portfolio.Clone()
	holding := staged.Holding(input.AssetID)
	if holding == nil {
		return nil, apperrors.NewUnknownAssetError(input.AssetID)
	}

	now := time.Now()
	switch input.Direction {
	case types.DirectionIn:
		holding.Amount = holding.Amount.Add(input.Amount)
	case types.DirectionOut:
		if holding.Amount.LessThan(input.Amount) {
			return nil, apperrors.NewInsufficientBalanceError(
				input.AssetID, holding.Amount.String(), input.Amount.String())
		}
		holding.Amount = holding.Amount.Sub(input.Amount)
	}
	holding.LastUpdatedAt = now

	intent := &types.TransferIntent{
		IntentID:    uuid.New().String(),
		PortfolioID: portfolioID,
		AssetID:     input.AssetID,
		From:        string(caller),
		To:          input.Counterparty,
		Amount:      input.Amount,
		Direction:   input.Direction,
		Memo:        input.Memo,
	}
	if err := s.executor.ExecuteTransfer(ctx, intent); err != nil {
		return nil, apperrors.NewCollaboratorFailedError("transfer executor", err)
	}

	if err := s.commit(ctx, staged); err != nil {
		return nil, err
	}
	return staged, nil
}

// Withdraw debits a holding directly. Portfolios with a multisig
// configuration must use the approval workflow instead.
func (s *LedgerService) Withdraw(ctx context.Context, caller types.Identity, portfolioID string, input *WithdrawInput) (*models.Portfolio, error) {
	if input.Amount.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}

	portfolio, err := s.loadOwned(ctx, caller, portfolioID)
	if err != nil {
		return nil, err
	}

	if portfolio.MultisigRequired() {
		return nil, apperrors.NewMultisigRequiredError(portfolioID)
	}

	if status := engine.CheckRisk(portfolio); !engine.AllowMutation(s.riskPolicy, status, engine.EffectDecrease) {
		return nil, apperrors.NewRiskViolationError(status)
	}

	staged := portfolio.Clone()
	holding := staged.Holding(input.AssetID)
	if holding == nil {
		return nil, apperrors.NewUnknownAssetError(input.AssetID)
	}
	if holding.Amount.LessThan(input.Amount) {
		return nil, apperrors.NewInsufficientBalanceError(
			input.AssetID, holding.Amount.String(), input.Amount.String())
	}
	holding.Amount = holding.Amount.Sub(input.Amount)
	holding.LastUpdatedAt = time.Now()

	intent := &types.TransferIntent{
		IntentID:    uuid.New().String(),
		PortfolioID: portfolioID,
		AssetID:     input.AssetID,
		From:        string(caller),
		To:          input.Destination,
		Amount:      input.Amount,
		Direction:   types.DirectionOut,
	}
	if err := s.executor.ExecuteTransfer(ctx, intent); err != nil {
		return nil, apperrors.NewCollaboratorFailedError("transfer executor", err)
	}

	if err := s.commit(ctx, staged); err != nil {
		return nil, err
	}
	return staged, nil
}

// ProvideLiquidity credits an existing holding with deposited amount
func (s *LedgerService) ProvideLiquidity(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID, amount decimal.Decimal) (*models.Portfolio, error) {
	return s.Transfer(ctx, caller, portfolioID, &TransferInput{
		AssetID:      assetID,
		Amount:       amount,
		Direction:    types.DirectionIn,
		Counterparty: string(caller),
		Memo:         "liquidity provision",
	})
}

// FlashLoan lends a holding's amount for the duration of the call and charges
// a flat fee on repayment. Borrow and repayment settle inside the same
// operation, so the only committed effect is the fee credit.
func (s *LedgerService) FlashLoan(ctx context.Context, caller types.Identity, portfolioID string, input *FlashLoanInput) (*FlashLoanResult, error) {
	if input.Amount.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}

	portfolio, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	staged := portfolio.Clone()
	holding := staged.Holding(input.AssetID)
	if holding == nil {
		return nil, apperrors.NewUnknownAssetError(input.AssetID)
	}
	if holding.Amount.LessThan(input.Amount) {
		return nil, apperrors.NewInsufficientBalanceError(
			input.AssetID, holding.Amount.String(), input.Amount.String())
	}

	fee := input.Amount.Mul(s.flashFeeRate)
	holding.Amount = holding.Amount.Add(fee)
	holding.LastUpdatedAt = time.Now()

	// The outbound leg and the repayment with fee must both confirm before
	// the fee credit commits.
	outbound := &types.TransferIntent{
		IntentID:    uuid.New().String(),
		PortfolioID: portfolioID,
		AssetID:     input.AssetID,
		From:        portfolioID,
		To:          string(caller),
		Amount:      input.Amount,
		Direction:   types.DirectionOut,
		Memo:        "flash loan",
	}
	if err := s.executor.ExecuteTransfer(ctx, outbound); err != nil {
		return nil, apperrors.NewCollaboratorFailedError("transfer executor", err)
	}
	repayment := &types.TransferIntent{
		IntentID:    uuid.New().String(),
		PortfolioID: portfolioID,
		AssetID:     input.AssetID,
		From:        string(caller),
		To:          portfolioID,
		Amount:      input.Amount.Add(fee),
		Direction:   types.DirectionIn,
		Memo:        "flash loan repayment",
	}
	if err := s.executor.ExecuteTransfer(ctx, repayment); err != nil {
		return nil, apperrors.NewCollaboratorFailedError("transfer executor", err)
	}

	if err := s.commit(ctx, staged); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"asset_id":     string(input.AssetID),
		"borrower":     string(caller),
		"fee":          fee.String(),
	}).Info("Flash loan settled")

	return &FlashLoanResult{
		AssetID:   input.AssetID,
		Borrowed:  input.Amount,
		Fee:       fee,
		NewAmount: holding.Amount,
	}, nil
}

// SetTargetRatios replaces the portfolio's rebalance targets
func (s *LedgerService) SetTargetRatios(ctx context.Context, caller types.Identity, portfolioID string, ratios models.TargetRatios) (*models.Portfolio, error) {
	if err := validateTargetRatios(ratios); err != nil {
		return nil, err
	}

	portfolio, err := s.loadOwned(ctx, caller, portfolioID)
	if err != nil {
		return nil, err
	}

	staged := portfolio.Clone()
	staged.TargetRatios = ratios

	if err := s.commit(ctx, staged); err != nil {
		return nil, err
	}
	return staged, nil
}

// Shared helpers

func (s *LedgerService) loadPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	portfolio, err := s.portfolioRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapPortfolioLoadError(id, err)
	}
	return portfolio, nil
}

// mapPortfolioLoadError translates repository errors into service errors
func mapPortfolioLoadError(id string, err error) error {
	if errors.Is(err, storage.ErrPortfolioNotFound) {
		return apperrors.NewPortfolioNotFoundError(id)
	}
	return apperrors.NewDatabaseError("get portfolio", err)
}

func (s *LedgerService) loadOwned(ctx context.Context, caller types.Identity, id string) (*models.Portfolio, error) {
	portfolio, err := s.loadPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	if portfolio.Owner != caller {
		return nil, apperrors.NewUnauthorizedError("caller is not the portfolio owner")
	}
	return portfolio, nil
}

func (s *LedgerService) commit(ctx context.Context, staged *models.Portfolio) error {
	if err := s.portfolioRepo.Update(ctx, staged); err != nil {
		return apperrors.NewDatabaseError("update portfolio", err)
	}
	return nil
}

func validateTargetRatios(ratios models.TargetRatios) error {
	if len(ratios) == 0 {
		return apperrors.NewInvalidRatiosError("at least one target is required")
	}
	for assetID, ratio := range ratios {
		if ratio.IsNegative() || ratio.GreaterThan(decimal.NewFromInt(1)) {
			return apperrors.NewInvalidRatiosError("each ratio must be within [0, 1]: " + string(assetID))
		}
	}
	if !ratios.Sum().Equal(decimal.NewFromInt(1)) {
		return apperrors.NewInvalidRatiosError("ratios must sum to 1")
	}
	return nil
}

func validateMultisig(mc *models.MultisigConfig) error {
	if len(mc.Signers) == 0 {
		return apperrors.NewInvalidParameterError("multisig.signers", "must not be empty")
	}
	if mc.Threshold < 1 || mc.Threshold > len(mc.Signers) {
		return apperrors.NewInvalidParameterError("multisig.threshold", "must be between 1 and the signer count")
	}
	seen := make(map[types.Identity]struct{}, len(mc.Signers))
	for _, signer := range mc.Signers {
		if signer == "" {
			return apperrors.NewInvalidParameterError("multisig.signers", "signer ids must not be empty")
		}
		if _, dup := seen[signer]; dup {
			return apperrors.NewInvalidParameterError("multisig.signers", "duplicate signer: "+string(signer))
		}
		seen[signer] = struct{}{}
	}
	return nil
}
