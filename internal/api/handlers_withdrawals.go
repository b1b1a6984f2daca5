package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/service"
	"github.com/portfolio-engine/internal/types"
)

// handleRequestWithdrawal handles POST /api/portfolios/{id}/withdraw-requests
func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID     types.AssetID   `json:"assetId"`
		Amount      decimal.Decimal `json:"amount"`
		Destination string          `json:"destination"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	withdrawal, err := s.multisigService.RequestWithdrawal(r.Context(), caller, mux.Vars(r)["id"],
		&service.RequestWithdrawalInput{
			AssetID:     req.AssetID,
			Amount:      req.Amount,
			Destination: req.Destination,
		})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, withdrawal)
}

// handleListWithdrawals handles GET /api/portfolios/{id}/withdraw-requests
func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := s.multisigService.ListPending(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"requests": withdrawals})
}

// handleGetWithdrawal handles GET /api/withdraw-requests/{req}
func (s *Server) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawal, err := s.multisigService.GetRequest(r.Context(), mux.Vars(r)["req"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, withdrawal)
}

// handleApproveWithdrawal handles POST /api/withdraw-requests/{req}/approvals
func (s *Server) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	withdrawal, err := s.multisigService.Approve(r.Context(), caller, mux.Vars(r)["req"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, withdrawal)
}

// handleExecuteWithdrawal handles POST /api/withdraw-requests/{req}/execute
func (s *Server) handleExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	withdrawal, err := s.multisigService.Execute(r.Context(), caller, mux.Vars(r)["req"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, withdrawal)
}

// handleCancelWithdrawal handles POST /api/withdraw-requests/{req}/cancel
func (s *Server) handleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	withdrawal, err := s.multisigService.Cancel(r.Context(), caller, mux.Vars(r)["req"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, withdrawal)
}

// handleSweepWithdrawals handles POST /api/withdraw-requests/sweep
func (s *Server) handleSweepWithdrawals(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	swept, err := s.multisigService.SweepExpired(r.Context(), time.Now())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"swept": swept})
}
