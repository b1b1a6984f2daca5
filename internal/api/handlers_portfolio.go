package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/service"
	"github.com/portfolio-engine/internal/types"
)

// handleInitializePortfolio handles POST /api/portfolios
func (s *Server) handleInitializePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinValue        decimal.Decimal        `json:"minValue"`
		MaxValue        decimal.Decimal        `json:"maxValue"`
		ManagementRate  decimal.Decimal        `json:"managementRate"`
		PerformanceRate decimal.Decimal        `json:"performanceRate"`
		TargetRatios    models.TargetRatios    `json:"targetRatios,omitempty"`
		Multisig        *models.MultisigConfig `json:"multisig,omitempty"`
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

	portfolio, err := s.ledgerService.InitializePortfolio(r.Context(), &service.InitializePortfolioInput{
		Owner:           caller,
		MinValue:        req.MinValue,
		MaxValue:        req.MaxValue,
		ManagementRate:  req.ManagementRate,
		PerformanceRate: req.PerformanceRate,
		TargetRatios:    req.TargetRatios,
		Multisig:        req.Multisig,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, portfolio)
}

// handleGetPortfolio handles GET /api/portfolios/{id}
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	portfolio, err := s.ledgerService.GetPortfolio(r.Context(), portfolioID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleCheckRisk handles GET /api/portfolios/{id}/risk
func (s *Server) handleCheckRisk(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledgerService.CheckRisk(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// handleListPortfolios handles GET /api/portfolios
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	ids, err := s.ledgerService.ListPortfolios(r.Context(), caller)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"portfolios": ids})
}

// handleAddAsset handles POST /api/portfolios/{id}/assets
func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID   types.AssetID   `json:"assetId"`
		Amount    decimal.Decimal `json:"amount"`
		UnitValue decimal.Decimal `json:"unitValue"`
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

	portfolio, err := s.ledgerService.AddAsset(r.Context(), caller, mux.Vars(r)["id"], &service.AddAssetInput{
		AssetID:   req.AssetID,
		Amount:    req.Amount,
		UnitValue: req.UnitValue,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, portfolio)
}

// handleUpdateValue handles PUT /api/portfolios/{id}/assets/{asset}/value
func (s *Server) handleUpdateValue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UnitValue decimal.Decimal `json:"unitValue"`
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

	vars := mux.Vars(r)
	portfolio, err := s.ledgerService.UpdateValue(r.Context(), caller, vars["id"],
		types.AssetID(vars["asset"]), req.UnitValue)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleRefreshValue handles POST /api/portfolios/{id}/assets/{asset}/value/refresh
func (s *Server) handleRefreshValue(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller ID required", nil)
		return
	}

	vars := mux.Vars(r)
	portfolio, err := s.ledgerService.RefreshValue(r.Context(), caller, vars["id"], types.AssetID(vars["asset"]))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleSetTargetRatios handles PUT /api/portfolios/{id}/ratios
func (s *Server) handleSetTargetRatios(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetRatios models.TargetRatios `json:"targetRatios"`
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

	portfolio, err := s.ledgerService.SetTargetRatios(r.Context(), caller, mux.Vars(r)["id"], req.TargetRatios)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleTransfer handles POST /api/portfolios/{id}/transfers
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID      types.AssetID   `json:"assetId"`
		Amount       decimal.Decimal `json:"amount"`
		Direction    string          `json:"direction"`
		Counterparty string          `json:"counterparty"`
		Memo         string          `json:"memo,omitempty"`
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

	portfolio, err := s.ledgerService.Transfer(r.Context(), caller, mux.Vars(r)["id"], &service.TransferInput{
		AssetID:      req.AssetID,
		Amount:       req.Amount,
		Direction:    types.TransferDirection(req.Direction),
		Counterparty: req.Counterparty,
		Memo:         req.Memo,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleWithdraw handles POST /api/portfolios/{id}/withdraw
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
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

	portfolio, err := s.ledgerService.Withdraw(r.Context(), caller, mux.Vars(r)["id"], &service.WithdrawInput{
		AssetID:     req.AssetID,
		Amount:      req.Amount,
		Destination: req.Destination,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleProvideLiquidity handles POST /api/portfolios/{id}/liquidity
func (s *Server) handleProvideLiquidity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID types.AssetID   `json:"assetId"`
		Amount  decimal.Decimal `json:"amount"`
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

	portfolio, err := s.ledgerService.ProvideLiquidity(r.Context(), caller, mux.Vars(r)["id"], req.AssetID, req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleFlashLoan handles POST /api/portfolios/{id}/flash-loans
func (s *Server) handleFlashLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID types.AssetID   `json:"assetId"`
		Amount  decimal.Decimal `json:"amount"`
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

	result, err := s.ledgerService.FlashLoan(r.Context(), caller, mux.Vars(r)["id"], &service.FlashLoanInput{
		AssetID: req.AssetID,
		Amount:  req.Amount,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
