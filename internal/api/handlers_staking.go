package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// handleStake handles POST /api/portfolios/{id}/stake
func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
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

	position, err := s.stakingService.Stake(r.Context(), caller, mux.Vars(r)["id"], req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, position)
}

// handleUnstake handles POST /api/portfolios/{id}/unstake
func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
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

	position, err := s.stakingService.Unstake(r.Context(), caller, mux.Vars(r)["id"], req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, position)
}

// handleDistributeRewards handles POST /api/portfolios/{id}/rewards/distribute
func (s *Server) handleDistributeRewards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reward decimal.Decimal `json:"reward"`
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

	result, err := s.stakingService.DistributeRewards(r.Context(), caller, mux.Vars(r)["id"], req.Reward)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleClaim handles POST /api/portfolios/{id}/rewards/claim
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	result, err := s.stakingService.Claim(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetPosition handles GET /api/portfolios/{id}/stake
func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	position, err := s.stakingService.GetPosition(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, position)
}
