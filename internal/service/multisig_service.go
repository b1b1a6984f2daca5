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

// WithdrawalRepository interface for multisig withdrawal persistence
type WithdrawalRepository interface {
	Create(ctx context.Context, w *models.PendingWithdrawal) error
	GetByID(ctx context.Context, id string) (*models.PendingWithdrawal, error)
	Update(ctx context.Context, w *models.PendingWithdrawal) error
	SaveExecution(ctx context.Context, w *models.PendingWithdrawal, portfolio *models.Portfolio) error
	ListPending(ctx context.Context, portfolioID string) ([]*models.PendingWithdrawal, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.PendingWithdrawal, error)
}

// MultisigService handles the approval workflow for gated withdrawals.
// A request collects signer approvals until the threshold is met; execution
// re-validates everything against current portfolio state, because the
// portfolio may have changed since the request was created.
type MultisigService struct {
	portfolioRepo  PortfolioRepository
	withdrawalRepo WithdrawalRepository
	executor       adapter.TransferExecutor
	riskPolicy     types.RiskPolicy
	requestTTL     time.Duration
}

// NewMultisigService creates a new multisig service
func NewMultisigService(
	portfolioRepo PortfolioRepository,
	withdrawalRepo WithdrawalRepository,
	executor adapter.TransferExecutor,
	riskPolicy types.RiskPolicy,
	requestTTL time.Duration,
) *MultisigService {
	return &MultisigService{
		portfolioRepo:  portfolioRepo,
		withdrawalRepo: withdrawalRepo,
		executor:       executor,
		riskPolicy:     riskPolicy,
		requestTTL:     requestTTL,
	}
}

// RequestWithdrawalInput represents input for opening a withdrawal request
type RequestWithdrawalInput struct {
	AssetID     types.AssetID   `json:"assetId"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

// RequestWithdrawal opens a pending withdrawal with no approvals. The
// requester must be the portfolio owner or a configured signer; approval is
// a separate step even for the requester.
func (s *MultisigService) RequestWithdrawal(ctx context.Context, requester types.Identity, portfolioID string, input *RequestWithdrawalInput) (*models.PendingWithdrawal, error) {
	if input.Amount.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}
	if input.Destination == "" {
		return nil, apperrors.NewInvalidParameterError("destination", "must not be empty")
	}

	portfolio, err := s.portfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, mapPortfolioLoadError(portfolioID, err)
	}
	if portfolio.MultisigConfig == nil {
		return nil, apperrors.NewInvalidParameterError("portfolioId", "portfolio has no multisig configuration")
	}
	if portfolio.Owner != requester && !portfolio.MultisigConfig.HasSigner(requester) {
		return nil, apperrors.NewUnauthorizedError("requester is not the owner or a signer")
	}

	holding := portfolio.Holding(input.AssetID)
	if holding == nil {
		return nil, apperrors.NewUnknownAssetError(input.AssetID)
	}
	if holding.Amount.LessThan(input.Amount) {
		return nil, apperrors.NewInsufficientBalanceError(
			input.AssetID, holding.Amount.String(), input.Amount.String())
	}

	now := time.Now()
	withdrawal := &models.PendingWithdrawal{
		ID:          uuid.New().String(),
		PortfolioID: portfolioID,
		Requester:   requester,
		AssetID:     input.AssetID,
		Amount:      input.Amount,
		Destination: input.Destination,
		Approvals:   []types.Identity{},
		Status:      types.WithdrawalPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.requestTTL),
	}

	if err := s.withdrawalRepo.Create(ctx, withdrawal); err != nil {
		return nil, apperrors.NewDatabaseError("create withdrawal request", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"request_id":   withdrawal.ID,
		"portfolio_id": portfolioID,
		"requester":    string(requester),
	}).Info("Withdrawal requested")

	return withdrawal, nil
}

// Approve records a signer's approval on a pending request. Each signer can
// approve at most once, and expired requests reject approvals.
func (s *MultisigService) Approve(ctx context.Context, signer types.Identity, requestID string) (*models.PendingWithdrawal, error) {
	withdrawal, portfolio, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if withdrawal.ExpiredAt(time.Now()) {
		return nil, apperrors.NewExpiredError(requestID)
	}
	if !portfolio.MultisigConfig.HasSigner(signer) {
		return nil, apperrors.NewNotASignerError(signer)
	}
	if withdrawal.HasApproval(signer) {
		return nil, apperrors.NewAlreadyApprovedError(signer)
	}

	staged := withdrawal.Clone()
	staged.Approvals = append(staged.Approvals, signer)

	if err := s.withdrawalRepo.Update(ctx, staged); err != nil {
		return nil, apperrors.NewDatabaseError("update withdrawal request", err)
	}
	return staged, nil
}

// Execute carries out a fully approved withdrawal. The debit, the transfer
// confirmation, and the status flip are all-or-nothing: a failed transfer
// leaves both the portfolio and the request unchanged.
func (s *MultisigService) Execute(ctx context.Context, caller types.Identity, requestID string) (*models.PendingWithdrawal, error) {
	withdrawal, portfolio, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if withdrawal.ExpiredAt(time.Now()) {
		return nil, apperrors.NewExpiredError(requestID)
	}
	if !portfolio.MultisigConfig.HasSigner(caller) {
		return nil, apperrors.NewNotASignerError(caller)
	}
	if len(withdrawal.Approvals) < portfolio.MultisigConfig.Threshold {
		return nil, apperrors.NewInsufficientApprovalsError(
			len(withdrawal.Approvals), portfolio.MultisigConfig.Threshold)
	}

	if status := engine.CheckRisk(portfolio); !engine.AllowMutation(s.riskPolicy, status, engine.EffectDecrease) {
		return nil, apperrors.NewRiskViolationError(status)
	}

	stagedPortfolio := portfolio.Clone()
	holding := stagedPortfolio.Holding(withdrawal.AssetID)
	if holding == nil {
		return nil, apperrors.NewUnknownAssetError(withdrawal.AssetID)
	}
	if holding.Amount.LessThan(withdrawal.Amount) {
		return nil, apperrors.NewInsufficientBalanceError(
			withdrawal.AssetID, holding.Amount.String(), withdrawal.Amount.String())
	}
	holding.Amount = holding.Amount.Sub(withdrawal.Amount)
	holding.LastUpdatedAt = time.Now()

	intent := &types.TransferIntent{
		IntentID:    withdrawal.ID,
		PortfolioID: withdrawal.PortfolioID,
		AssetID:     withdrawal.AssetID,
		From:        string(portfolio.Owner),
		To:          withdrawal.Destination,
		Amount:      withdrawal.Amount,
		Direction:   types.DirectionOut,
	}
	if err := s.executor.ExecuteTransfer(ctx, intent); err != nil {
		return nil, apperrors.NewCollaboratorFailedError("transfer executor", err)
	}

	stagedWithdrawal := withdrawal.Clone()
	stagedWithdrawal.Status = types.WithdrawalExecuted

	if err := s.withdrawalRepo.SaveExecution(ctx, stagedWithdrawal, stagedPortfolio); err != nil {
		return nil, apperrors.NewDatabaseError("execute withdrawal", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"request_id":   requestID,
		"portfolio_id": withdrawal.PortfolioID,
		"amount":       withdrawal.Amount.String(),
	}).Info("Withdrawal executed")

	return stagedWithdrawal, nil
}

// Cancel voids a pending request. Only the requester or the portfolio owner
// may cancel.
func (s *MultisigService) Cancel(ctx context.Context, caller types.Identity, requestID string) (*models.PendingWithdrawal, error) {
	withdrawal, portfolio, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if caller != withdrawal.Requester && caller != portfolio.Owner {
		return nil, apperrors.NewUnauthorizedError("only the requester or portfolio owner may cancel")
	}

	staged := withdrawal.Clone()
	staged.Status = types.WithdrawalCancelled

	if err := s.withdrawalRepo.Update(ctx, staged); err != nil {
		return nil, apperrors.NewDatabaseError("update withdrawal request", err)
	}
	return staged, nil
}

// GetRequest returns a withdrawal request by id
func (s *MultisigService) GetRequest(ctx context.Context, requestID string) (*models.PendingWithdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrWithdrawalNotFound) {
			return nil, apperrors.NewWithdrawalNotFoundError(requestID)
		}
		return nil, apperrors.NewDatabaseError("get withdrawal request", err)
	}
	return withdrawal, nil
}

// ListPending returns all requests still collecting approvals for a portfolio
func (s *MultisigService) ListPending(ctx context.Context, portfolioID string) ([]*models.PendingWithdrawal, error) {
	withdrawals, err := s.withdrawalRepo.ListPending(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list withdrawal requests", err)
	}
	return withdrawals, nil
}

// SweepExpired marks every pending request past its expiry as expired.
// Expired requests never execute; they must be explicitly swept or cancelled.
// Returns the number of requests swept.
func (s *MultisigService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.withdrawalRepo.ListExpired(ctx, now)
	if err != nil {
		return 0, apperrors.NewDatabaseError("list expired withdrawal requests", err)
	}

	swept := 0
	for _, withdrawal := range expired {
		staged := withdrawal.Clone()
		staged.Status = types.WithdrawalExpired
		if err := s.withdrawalRepo.Update(ctx, staged); err != nil {
			return swept, apperrors.NewDatabaseError("update withdrawal request", err)
		}
		swept++
	}

	if swept > 0 {
		logging.FromContext(ctx).WithField("count", swept).Info("Expired withdrawal requests swept")
	}
	return swept, nil
}

func (s *MultisigService) loadPending(ctx context.Context, requestID string) (*models.PendingWithdrawal, *models.Portfolio, error) {
	withdrawal, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if withdrawal.Status != types.WithdrawalPending {
		return nil, nil, apperrors.NewInvalidParameterError("requestId",
			"request is no longer pending: "+string(withdrawal.Status))
	}

	portfolio, err := s.portfolioRepo.GetByID(ctx, withdrawal.PortfolioID)
	if err != nil {
		return nil, nil, mapPortfolioLoadError(withdrawal.PortfolioID, err)
	}
	if portfolio.MultisigConfig == nil {
		return nil, nil, apperrors.NewInvalidParameterError("requestId", "portfolio has no multisig configuration")
	}
	return withdrawal, portfolio, nil
}
