package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-engine/internal/errors"
	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/storage"
	"github.com/portfolio-engine/internal/types"
)

// MintRepository interface for governance issuance persistence
type MintRepository interface {
	GetByPortfolio(ctx context.Context, portfolioID string) (*models.GovernanceMint, error)
	SaveIssuance(ctx context.Context, mint *models.GovernanceMint, portfolio *models.Portfolio) error
}

// GovernanceService issues governance tokens against a portfolio. Issuance
// is a counter over the mint primitive; token distribution itself happens
// off-ledger.
type GovernanceService struct {
	portfolioRepo PortfolioRepository
	mintRepo      MintRepository
}

// NewGovernanceService creates a new governance service
func NewGovernanceService(portfolioRepo PortfolioRepository, mintRepo MintRepository) *GovernanceService {
	return &GovernanceService{
		portfolioRepo: portfolioRepo,
		mintRepo:      mintRepo,
	}
}

// Issue mints amount governance tokens for the portfolio. The first issuance
// creates the mint and links it to the portfolio.
func (s *GovernanceService) Issue(ctx context.Context, caller types.Identity, portfolioID string, amount decimal.Decimal) (*models.GovernanceMint, error) {
	if amount.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}

	portfolio, err := s.portfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, mapPortfolioLoadError(portfolioID, err)
	}
	if portfolio.Owner != caller {
		return nil, apperrors.NewUnauthorizedError("caller is not the portfolio owner")
	}

	mint, err := s.mintRepo.GetByPortfolio(ctx, portfolioID)
	if errors.Is(err, storage.ErrMintNotFound) {
		mint = &models.GovernanceMint{PortfolioID: portfolioID}
	} else if err != nil {
		return nil, apperrors.NewDatabaseError("get governance mint", err)
	}

	mint.TotalIssued = mint.TotalIssued.Add(amount)

	// Counter and portfolio link land in one transaction so a crash between
	// them cannot leave an unlinked mint.
	var staged *models.Portfolio
	if portfolio.GovernanceMintID == nil {
		staged = portfolio.Clone()
		staged.GovernanceMintID = &mint.ID
	}
	if err := s.mintRepo.SaveIssuance(ctx, mint, staged); err != nil {
		return nil, apperrors.NewDatabaseError("save governance issuance", err)
	}

	return mint, nil
}

// Get returns the governance mint for a portfolio
func (s *GovernanceService) Get(ctx context.Context, portfolioID string) (*models.GovernanceMint, error) {
	mint, err := s.mintRepo.GetByPortfolio(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, storage.ErrMintNotFound) {
			return nil, apperrors.NewNotFoundError("governance mint", portfolioID)
		}
		return nil, apperrors.NewDatabaseError("get governance mint", err)
	}
	return mint, nil
}
