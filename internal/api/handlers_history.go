package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// handleRecordSnapshot handles POST /api/portfolios/{id}/snapshots
func (s *Server) handleRecordSnapshot(w http.ResponseWriter, r *http.Request) {
	point, err := s.snapshotService.RecordPerformance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, point)
}

// handleGetHistory handles GET /api/portfolios/{id}/history?from=...&to=...
// Timestamps are RFC 3339; from defaults to the beginning of time and to
// defaults to now.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	from := time.Time{}
	to := time.Now()

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid 'from' timestamp", nil)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid 'to' timestamp", nil)
			return
		}
		to = parsed
	}

	points, err := s.snapshotService.History(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"history": points})
}

// handleIssueGovernance handles POST /api/portfolios/{id}/governance/issue
func (s *Server) handleIssueGovernance(w http.ResponseWriter, r *http.Request) {
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

	mint, err := s.governanceService.Issue(r.Context(), caller, mux.Vars(r)["id"], req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, mint)
}

// handleGetGovernance handles GET /api/portfolios/{id}/governance
func (s *Server) handleGetGovernance(w http.ResponseWriter, r *http.Request) {
	mint, err := s.governanceService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, mint)
}
