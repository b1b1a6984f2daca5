package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// handleAccrueFees handles POST /api/portfolios/{id}/fees/accrue
func (s *Server) handleAccrueFees(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WithBonus bool `json:"withBonus,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := parseJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
			return
		}
	}

	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	result, err := s.feeService.AccrueFees(r.Context(), caller, mux.Vars(r)["id"], req.WithBonus)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleRebalance handles POST /api/portfolios/{id}/rebalance
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tolerance *decimal.Decimal `json:"tolerance,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := parseJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
			return
		}
	}

	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	result, err := s.rebalanceService.Rebalance(r.Context(), caller, mux.Vars(r)["id"], req.Tolerance)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleAutoRebalance handles POST /api/portfolios/{id}/rebalance/auto
func (s *Server) handleAutoRebalance(w http.ResponseWriter, r *http.Request) {
	result, err := s.rebalanceService.AutoRebalance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
