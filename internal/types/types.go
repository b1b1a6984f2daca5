// Package types provides common type definitions for the portfolio engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Identity is an opaque caller identity verified by the host environment.
// The engine never inspects it beyond equality comparison.
type Identity string

// AssetID identifies one asset within a portfolio.
type AssetID string

// RiskStatus represents the outcome of a risk bounds check
type RiskStatus string

const (
	// RiskOK means total value is within the configured bounds
	RiskOK RiskStatus = "ok"
	// RiskBelowMin means total value is under the minimum bound
	RiskBelowMin RiskStatus = "below_min"
	// RiskAboveMax means total value is over the maximum bound
	RiskAboveMax RiskStatus = "above_max"
)

// Violated reports whether the status is any violation
func (s RiskStatus) Violated() bool {
	return s == RiskBelowMin || s == RiskAboveMax
}

// RiskPolicy controls how strictly a risk violation gates mutations
type RiskPolicy string

const (
	// RiskPolicyStrict rejects every mutating operation while violated,
	// except deposits, asset additions and risk-reducing transfers
	RiskPolicyStrict RiskPolicy = "strict"
	// RiskPolicyLenient only rejects mutations that move total value
	// further away from the bounds
	RiskPolicyLenient RiskPolicy = "lenient"
)

// TransferDirection represents whether value enters or leaves the portfolio
type TransferDirection string

const (
	// DirectionIn represents an inbound transfer (deposit)
	DirectionIn TransferDirection = "in"
	// DirectionOut represents an outbound transfer (withdrawal)
	DirectionOut TransferDirection = "out"
)

// WithdrawalStatus represents the state of a pending multisig withdrawal
type WithdrawalStatus string

const (
	// WithdrawalPending represents a request collecting approvals
	WithdrawalPending WithdrawalStatus = "pending"
	// WithdrawalExecuted represents a request that completed the withdrawal
	WithdrawalExecuted WithdrawalStatus = "executed"
	// WithdrawalExpired represents a request swept after its expiry time
	WithdrawalExpired WithdrawalStatus = "expired"
	// WithdrawalCancelled represents a request cancelled by its requester
	WithdrawalCancelled WithdrawalStatus = "cancelled"
)

// TransferIntent is a core-generated instruction describing a desired value
// movement. The engine never moves value itself; intents are handed to the
// external transfer collaborator and the issuing operation only commits once
// every intent is confirmed.
type TransferIntent struct {
	IntentID    string            `json:"intentId"`
	PortfolioID string            `json:"portfolioId"`
	AssetID     AssetID           `json:"assetId"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Amount      decimal.Decimal   `json:"amount"`
	Direction   TransferDirection `json:"direction"`
	Memo        string            `json:"memo,omitempty"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Error codes returned by engine operations. Each maps onto exactly one
// failure in the operation contract; the API layer translates them to HTTP.
const (
	ErrCodeDuplicateAsset        = "DUPLICATE_ASSET"
	ErrCodeUnknownAsset          = "UNKNOWN_ASSET"
	ErrCodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	ErrCodeRiskViolation         = "RISK_VIOLATION"
	ErrCodeNoRebalanceNeeded     = "NO_REBALANCE_NEEDED"
	ErrCodeInsufficientStake     = "INSUFFICIENT_STAKE"
	ErrCodeNoStakers             = "NO_STAKERS"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeNotASigner            = "NOT_A_SIGNER"
	ErrCodeAlreadyApproved       = "ALREADY_APPROVED"
	ErrCodeInsufficientApprovals = "INSUFFICIENT_APPROVALS"
	ErrCodeExpired               = "EXPIRED"
	ErrCodeCollaboratorFailed    = "COLLABORATOR_FAILED"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodePortfolioNotFound     = "PORTFOLIO_NOT_FOUND"
	ErrCodeWithdrawalNotFound    = "WITHDRAWAL_NOT_FOUND"
	ErrCodeInvalidRatios         = "INVALID_RATIOS"
	ErrCodeMultisigRequired      = "MULTISIG_REQUIRED"
)

// ValuePoint is one entry of a portfolio's performance history
type ValuePoint struct {
	PortfolioID string          `json:"portfolioId"`
	TotalValue  decimal.Decimal `json:"totalValue"`
	CapturedAt  time.Time       `json:"capturedAt"`
}
