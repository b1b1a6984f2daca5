package errors

import (
	"fmt"
	"net/http"

	"github.com/portfolio-engine/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryCollaborator represents external collaborator errors
	CategoryCollaborator ErrorCategory = "collaborator"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryPrecondition represents operations rejected by engine state
	CategoryPrecondition ErrorCategory = "precondition"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Ledger errors

// NewDuplicateAssetError creates a duplicate asset error
func NewDuplicateAssetError(assetID types.AssetID) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       types.ErrCodeDuplicateAsset,
		Message:    fmt.Sprintf("asset already exists: %s", assetID),
		Details: map[string]interface{}{
			"assetId": string(assetID),
		},
	}
}

// NewUnknownAssetError creates an unknown asset error
func NewUnknownAssetError(assetID types.AssetID) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       types.ErrCodeUnknownAsset,
		Message:    fmt.Sprintf("asset not found: %s", assetID),
		Details: map[string]interface{}{
			"assetId": string(assetID),
		},
	}
}

// NewInsufficientBalanceError creates an insufficient balance error
func NewInsufficientBalanceError(assetID types.AssetID, available, requested string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       types.ErrCodeInsufficientBalance,
		Message:    fmt.Sprintf("insufficient balance for asset %s", assetID),
		Details: map[string]interface{}{
			"assetId":   string(assetID),
			"available": available,
			"requested": requested,
		},
	}
}

// Risk errors

// NewRiskViolationError creates a risk violation error
func NewRiskViolationError(status types.RiskStatus) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       types.ErrCodeRiskViolation,
		Message:    fmt.Sprintf("portfolio value violates risk bounds: %s", status),
		Details: map[string]interface{}{
			"status": string(status),
		},
	}
}

// NewNoRebalanceNeededError creates a no rebalance needed error
func NewNoRebalanceNeededError(tolerance string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       types.ErrCodeNoRebalanceNeeded,
		Message:    "no asset deviates beyond tolerance",
		Details: map[string]interface{}{
			"tolerance": tolerance,
		},
	}
}

// Staking errors

// NewInsufficientStakeError creates an insufficient stake error
func NewInsufficientStakeError(staked, requested string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       types.ErrCodeInsufficientStake,
		Message:    "unstake amount exceeds staked amount",
		Details: map[string]interface{}{
			"staked":    staked,
			"requested": requested,
		},
	}
}

// NewNoStakersError creates a no stakers error
func NewNoStakersError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       types.ErrCodeNoStakers,
		Message:    "cannot distribute rewards to an empty staking pool",
	}
}

// Authorization and multisig errors

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       types.ErrCodeUnauthorized,
		Message:    message,
	}
}

// NewNotASignerError creates a not-a-signer error
func NewNotASignerError(id types.Identity) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       types.ErrCodeNotASigner,
		Message:    fmt.Sprintf("identity is not a configured signer: %s", id),
		Details: map[string]interface{}{
			"identity": string(id),
		},
	}
}

// NewAlreadyApprovedError creates an already approved error
func NewAlreadyApprovedError(id types.Identity) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       types.ErrCodeAlreadyApproved,
		Message:    fmt.Sprintf("signer already approved this request: %s", id),
		Details: map[string]interface{}{
			"identity": string(id),
		},
	}
}

// NewInsufficientApprovalsError creates an insufficient approvals error
func NewInsufficientApprovalsError(approvals, threshold int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       types.ErrCodeInsufficientApprovals,
		Message:    fmt.Sprintf("withdrawal has %d of %d required approvals", approvals, threshold),
		Details: map[string]interface{}{
			"approvals": approvals,
			"threshold": threshold,
		},
	}
}

// NewExpiredError creates an expired request error
func NewExpiredError(requestID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       types.ErrCodeExpired,
		Message:    fmt.Sprintf("withdrawal request is past its expiry: %s", requestID),
		Details: map[string]interface{}{
			"requestId": requestID,
		},
	}
}

// NewMultisigRequiredError creates a multisig required error. Direct
// withdrawals are rejected with this when the portfolio has an approval
// workflow configured.
func NewMultisigRequiredError(portfolioID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       types.ErrCodeMultisigRequired,
		Message:    fmt.Sprintf("portfolio requires the multisig withdrawal workflow: %s", portfolioID),
		Details: map[string]interface{}{
			"portfolioId": portfolioID,
		},
	}
}

// Collaborator errors

// NewCollaboratorFailedError creates a collaborator failure error. It is
// never swallowed: the issuing operation must abort without committing.
func NewCollaboratorFailedError(collaborator string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCollaborator,
		StatusCode: http.StatusBadGateway,
		Code:       types.ErrCodeCollaboratorFailed,
		Message:    fmt.Sprintf("collaborator failed: %s", collaborator),
		Cause:      cause,
		Details: map[string]interface{}{
			"collaborator": collaborator,
		},
	}
}

// Generic errors

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       types.ErrCodeInvalidInput,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInvalidRatiosError creates an invalid target ratio error
func NewInvalidRatiosError(reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       types.ErrCodeInvalidRatios,
		Message:    fmt.Sprintf("invalid target ratios: %s", reason),
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewPortfolioNotFoundError creates a portfolio not found error
func NewPortfolioNotFoundError(id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       types.ErrCodePortfolioNotFound,
		Message:    fmt.Sprintf("portfolio not found: %s", id),
		Details: map[string]interface{}{
			"portfolioId": id,
		},
	}
}

// NewWithdrawalNotFoundError creates a withdrawal request not found error
func NewWithdrawalNotFoundError(id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       types.ErrCodeWithdrawalNotFound,
		Message:    fmt.Sprintf("withdrawal request not found: %s", id),
		Details: map[string]interface{}{
			"requestId": id,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized, return as-is
	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	// If it's a ServiceError, convert it
	if svcErr, ok := err.(*types.ServiceError); ok {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	status := http.StatusInternalServerError
	category := CategorySystem

	switch err.Code {
	case types.ErrCodeInvalidInput, types.ErrCodeInvalidRatios:
		status, category = http.StatusBadRequest, CategoryValidation
	case types.ErrCodeUnknownAsset, types.ErrCodePortfolioNotFound, types.ErrCodeWithdrawalNotFound:
		status, category = http.StatusNotFound, CategoryNotFound
	case types.ErrCodeDuplicateAsset, types.ErrCodeAlreadyApproved:
		status, category = http.StatusConflict, CategoryConflict
	case types.ErrCodeUnauthorized, types.ErrCodeNotASigner:
		status, category = http.StatusForbidden, CategoryAuthorization
	case types.ErrCodeInsufficientBalance, types.ErrCodeRiskViolation,
		types.ErrCodeNoRebalanceNeeded, types.ErrCodeInsufficientStake,
		types.ErrCodeNoStakers, types.ErrCodeInsufficientApprovals,
		types.ErrCodeExpired, types.ErrCodeMultisigRequired:
		status, category = http.StatusUnprocessableEntity, CategoryPrecondition
	case types.ErrCodeCollaboratorFailed:
		status, category = http.StatusBadGateway, CategoryCollaborator
	}

	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	// Collaborator and database failures may be transient; every engine
	// operation is safe to re-invoke because failures leave no partial state.
	switch catErr.Category {
	case CategoryCollaborator, CategoryDatabase:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
