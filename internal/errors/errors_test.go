package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-engine/internal/types"
)

func TestCategorize_PassesThroughCategorizedErrors(t *testing.T) {
	original := NewRiskViolationError(types.RiskBelowMin)

	categorized := Categorize(original)
	assert.Same(t, original, categorized)
}

func TestCategorize_ServiceErrorCodes(t *testing.T) {
	tests := []struct {
		code     string
		status   int
		category ErrorCategory
	}{
		{types.ErrCodeInvalidInput, http.StatusBadRequest, CategoryValidation},
		{types.ErrCodeInvalidRatios, http.StatusBadRequest, CategoryValidation},
		{types.ErrCodePortfolioNotFound, http.StatusNotFound, CategoryNotFound},
		{types.ErrCodeUnknownAsset, http.StatusNotFound, CategoryNotFound},
		{types.ErrCodeDuplicateAsset, http.StatusConflict, CategoryConflict},
		{types.ErrCodeAlreadyApproved, http.StatusConflict, CategoryConflict},
		{types.ErrCodeUnauthorized, http.StatusForbidden, CategoryAuthorization},
		{types.ErrCodeNotASigner, http.StatusForbidden, CategoryAuthorization},
		{types.ErrCodeInsufficientBalance, http.StatusUnprocessableEntity, CategoryPrecondition},
		{types.ErrCodeRiskViolation, http.StatusUnprocessableEntity, CategoryPrecondition},
		{types.ErrCodeNoStakers, http.StatusUnprocessableEntity, CategoryPrecondition},
		{types.ErrCodeExpired, http.StatusUnprocessableEntity, CategoryPrecondition},
		{types.ErrCodeMultisigRequired, http.StatusUnprocessableEntity, CategoryPrecondition},
		{types.ErrCodeCollaboratorFailed, http.StatusBadGateway, CategoryCollaborator},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			categorized := Categorize(&types.ServiceError{Code: tt.code, Message: "test"})
			require.NotNil(t, categorized)
			assert.Equal(t, tt.status, categorized.StatusCode)
			assert.Equal(t, tt.category, categorized.Category)
			assert.Equal(t, tt.code, categorized.Code)
		})
	}
}

func TestCategorize_UnknownErrorIsInternal(t *testing.T) {
	categorized := Categorize(fmt.Errorf("something broke"))

	assert.Equal(t, http.StatusInternalServerError, categorized.StatusCode)
	assert.Equal(t, CategorySystem, categorized.Category)
	assert.Error(t, categorized.Unwrap())
}

func TestCategorize_Nil(t *testing.T) {
	assert.Nil(t, Categorize(nil))
}

func TestCategorizedError_ErrorAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewCollaboratorFailedError("transfer executor", cause)

	assert.Contains(t, err.Error(), "COLLABORATOR_FAILED")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Same(t, cause, err.Unwrap())
}

func TestToServiceError(t *testing.T) {
	err := NewInsufficientApprovalsError(1, 2)
	svcErr := err.ToServiceError()

	assert.Equal(t, types.ErrCodeInsufficientApprovals, svcErr.Code)
	assert.Equal(t, 1, svcErr.Details["approvals"])
	assert.Equal(t, 2, svcErr.Details["threshold"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewCollaboratorFailedError("oracle", nil)))
	assert.True(t, IsRetryable(NewDatabaseError("update portfolio", nil)))
	assert.False(t, IsRetryable(NewInvalidParameterError("amount", "must be positive")))
	assert.False(t, IsRetryable(NewUnauthorizedError("nope")))
	assert.False(t, IsRetryable(NewRiskViolationError(types.RiskAboveMax)))
	assert.False(t, IsRetryable(nil))
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(NewDuplicateAssetError("token-a")))
	assert.True(t, IsUserError(NewPortfolioNotFoundError("p-1")))
	assert.False(t, IsUserError(NewInternalError("boom", nil)))
	assert.False(t, IsUserError(NewCollaboratorFailedError("executor", nil)))
}
