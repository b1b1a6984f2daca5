package models

import (
	"time"

	"github.com/portfolio-engine/internal/types"
	"github.com/shopspring/decimal"
)

// PendingWithdrawal represents a multisig withdrawal request collecting
// approvals. It is created by a request operation and destroyed by execution
// or an explicit expiry sweep; expired requests never auto-execute.
type PendingWithdrawal struct {
	ID          string                 `json:"id" db:"id"`
	PortfolioID string                 `json:"portfolioId" db:"portfolio_id"`
	Requester   types.Identity         `json:"requester" db:"requester"`
	AssetID     types.AssetID          `json:"assetId" db:"asset_id"`
	Amount      decimal.Decimal        `json:"amount" db:"amount"`
	Destination string                 `json:"destination" db:"destination"`
	Approvals   []types.Identity       `json:"approvals"`
	Status      types.WithdrawalStatus `json:"status" db:"status"`
	CreatedAt   time.Time              `json:"createdAt" db:"created_at"`
	ExpiresAt   time.Time              `json:"expiresAt" db:"expires_at"`
}

// HasApproval reports whether the signer already approved this request
func (w *PendingWithdrawal) HasApproval(id types.Identity) bool {
	for _, a := range w.Approvals {
		if a == id {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the request is past its expiry time
func (w *PendingWithdrawal) ExpiredAt(now time.Time) bool {
	return now.After(w.ExpiresAt)
}

// Clone returns a deep copy of the pending withdrawal
func (w *PendingWithdrawal) Clone() *PendingWithdrawal {
	cp := *w
	cp.Approvals = make([]types.Identity, len(w.Approvals))
	copy(cp.Approvals, w.Approvals)
	return &cp
}

// GovernanceMint is the issuance counter backing governance token grants.
// Issuance is a thin wrapper over the ledger's mint primitive: the counter
// records how many units have ever been issued for a portfolio.
type GovernanceMint struct {
	ID          string          `json:"id" db:"id"`
	PortfolioID string          `json:"portfolioId" db:"portfolio_id"`
	TotalIssued decimal.Decimal `json:"totalIssued" db:"total_issued"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}
