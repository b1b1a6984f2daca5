package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-engine/internal/errors"
	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/service"
	"github.com/portfolio-engine/internal/types"
)

// Stub services for handler testing. Each method returns a canned value
// unless an error is injected.

type stubLedgerService struct {
	err error
}

func (s *stubLedgerService) portfolio() *models.Portfolio {
	return &models.Portfolio{
		ID:    "p-1",
		Owner: "alice",
		Holdings: []models.Holding{
			{AssetID: "token-a", Amount: decimal.NewFromInt(60), UnitValue: decimal.NewFromInt(10)},
		},
	}
}

func (s *stubLedgerService) InitializePortfolio(ctx context.Context, input *service.InitializePortfolioInput) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := s.portfolio()
	p.Owner = input.Owner
	return p, nil
}

func (s *stubLedgerService) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.portfolio(), nil
}

func (s *stubLedgerService) CheckRisk(ctx context.Context, id string) (*service.RiskReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.RiskReport{
		PortfolioID: id,
		Status:      types.RiskOK,
		TotalValue:  decimal.NewFromInt(600),
		MinValue:    decimal.NewFromInt(100),
		MaxValue:    decimal.NewFromInt(100000),
	}, nil
}

func (s *stubLedgerService) ListPortfolios(ctx context.Context, owner types.Identity) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []string{"p-1"}, nil
}

func (s *stubLedgerService) AddAsset(ctx context.Context, caller types.Identity, portfolioID string, input *service.AddAssetInput) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.portfolio(), nil
}

func (s *stubLedgerService) UpdateValue(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID, unitValue decimal.Decimal) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.portfolio(), nil
}

func (s *stubLedgerService) RefreshValue(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.portfolio(), nil
}

func (s *stubLedgerService) Transfer(ctx context.Context, caller types.Identity, portfolioID string, input *service.TransferInput) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.portfolio(), nil
}

func (s *stubLedgerService) Withdraw(ctx context.Context, caller types.Identity, portfolioID string, input *service.WithdrawInput) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.portfolio(), nil
}

func (s *stubLedgerService) ProvideLiquidity(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID, amount decimal.Decimal) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.portfolio(), nil
}

func (s *stubLedgerService) FlashLoan(ctx context.Context, caller types.Identity, portfolioID string, input *service.FlashLoanInput) (*service.FlashLoanResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.FlashLoanResult{
		AssetID:  input.AssetID,
		Borrowed: input.Amount,
		Fee:      input.Amount.Mul(decimal.RequireFromString("0.01")),
	}, nil
}

func (s *stubLedgerService) SetTargetRatios(ctx context.Context, caller types.Identity, portfolioID string, ratios models.TargetRatios) (*models.Portfolio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.portfolio(), nil
}

type stubFeeService struct {
	err error
}

func (s *stubFeeService) AccrueFees(ctx context.Context, caller types.Identity, portfolioID string, withBonus bool) (*service.AccrueFeesResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.AccrueFeesResult{Accrued: true, ManagementFee: decimal.NewFromInt(5)}, nil
}

type stubRebalanceService struct {
	err error
}

func (s *stubRebalanceService) Rebalance(ctx context.Context, caller types.Identity, portfolioID string, tolerance *decimal.Decimal) (*service.RebalanceResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.RebalanceResult{TotalValue: decimal.NewFromInt(1000)}, nil
}

func (s *stubRebalanceService) AutoRebalance(ctx context.Context, portfolioID string) (*service.RebalanceResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.RebalanceResult{Automatic: true}, nil
}

type stubStakingService struct {
	err error
}

func (s *stubStakingService) position() *service.StakePosition {
	return &service.StakePosition{PortfolioID: "p-1", StakedAmount: decimal.NewFromInt(100)}
}

func (s *stubStakingService) Stake(ctx context.Context, staker types.Identity, portfolioID string, amount decimal.Decimal) (*service.StakePosition, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.position(), nil
}

func (s *stubStakingService) Unstake(ctx context.Context, staker types.Identity, portfolioID string, amount decimal.Decimal) (*service.StakePosition, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.position(), nil
}

func (s *stubStakingService) DistributeRewards(ctx context.Context, caller types.Identity, portfolioID string, reward decimal.Decimal) (*service.DistributeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.DistributeResult{Reward: reward}, nil
}

func (s *stubStakingService) Claim(ctx context.Context, staker types.Identity, portfolioID string) (*service.ClaimResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.ClaimResult{Claimed: decimal.NewFromInt(10)}, nil
}

func (s *stubStakingService) GetPosition(ctx context.Context, staker types.Identity, portfolioID string) (*service.StakePosition, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.position(), nil
}

type stubMultisigService struct {
	err error
}

func (s *stubMultisigService) withdrawal() *models.PendingWithdrawal {
	return &models.PendingWithdrawal{
		ID:          "w-1",
		PortfolioID: "p-1",
		Status:      types.WithdrawalPending,
	}
}

func (s *stubMultisigService) RequestWithdrawal(ctx context.Context, requester types.Identity, portfolioID string, input *service.RequestWithdrawalInput) (*models.PendingWithdrawal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.withdrawal(), nil
}

func (s *stubMultisigService) Approve(ctx context.Context, signer types.Identity, requestID string) (*models.PendingWithdrawal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.withdrawal(), nil
}

func (s *stubMultisigService) Execute(ctx context.Context, caller types.Identity, requestID string) (*models.PendingWithdrawal, error) {
	if s.err != nil {
		return nil, s.err
	}
	w := s.withdrawal()
	w.Status = types.WithdrawalExecuted
	return w, nil
}

func (s *stubMultisigService) Cancel(ctx context.Context, caller types.Identity, requestID string) (*models.PendingWithdrawal, error) {
	if s.err != nil {
		return nil, s.err
	}
	w := s.withdrawal()
	w.Status = types.WithdrawalCancelled
	return w, nil
}

func (s *stubMultisigService) GetRequest(ctx context.Context, requestID string) (*models.PendingWithdrawal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.withdrawal(), nil
}

func (s *stubMultisigService) ListPending(ctx context.Context, portfolioID string) ([]*models.PendingWithdrawal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*models.PendingWithdrawal{s.withdrawal()}, nil
}

func (s *stubMultisigService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return 1, nil
}

type stubSnapshotService struct {
	err error
}

func (s *stubSnapshotService) RecordPerformance(ctx context.Context, portfolioID string) (*types.ValuePoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.ValuePoint{PortfolioID: portfolioID, TotalValue: decimal.NewFromInt(1000), CapturedAt: time.Now()}, nil
}

func (s *stubSnapshotService) History(ctx context.Context, portfolioID string, from, to time.Time) ([]types.ValuePoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []types.ValuePoint{{PortfolioID: portfolioID, TotalValue: decimal.NewFromInt(1000)}}, nil
}

func (s *stubSnapshotService) Latest(ctx context.Context, portfolioID string) (*types.ValuePoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.ValuePoint{PortfolioID: portfolioID, TotalValue: decimal.NewFromInt(1000)}, nil
}

type stubGovernanceService struct {
	err error
}

func (s *stubGovernanceService) Issue(ctx context.Context, caller types.Identity, portfolioID string, amount decimal.Decimal) (*models.GovernanceMint, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.GovernanceMint{ID: "mint-1", PortfolioID: portfolioID, TotalIssued: amount}, nil
}

func (s *stubGovernanceService) Get(ctx context.Context, portfolioID string) (*models.GovernanceMint, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.GovernanceMint{ID: "mint-1", PortfolioID: portfolioID}, nil
}

type testServices struct {
	ledger     *stubLedgerService
	fee        *stubFeeService
	rebalance  *stubRebalanceService
	staking    *stubStakingService
	multisig   *stubMultisigService
	snapshot   *stubSnapshotService
	governance *stubGovernanceService
}

func createTestServer() (*Server, *testServices) {
	services := &testServices{
		ledger:     &stubLedgerService{},
		fee:        &stubFeeService{},
		rebalance:  &stubRebalanceService{},
		staking:    &stubStakingService{},
		multisig:   &stubMultisigService{},
		snapshot:   &stubSnapshotService{},
		governance: &stubGovernanceService{},
	}

	server := NewServer(
		&ServerConfig{Host: "localhost", Port: "0", RPS: 1000},
		services.ledger,
		services.fee,
		services.rebalance,
		services.staking,
		services.multisig,
		services.snapshot,
		services.governance,
	)
	return server, services
}

func doRequest(server *Server, method, path string, body interface{}, caller string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller-ID", caller)
	}

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "GET", "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestInitializePortfolio_Created(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "POST", "/api/portfolios", map[string]interface{}{
		"minValue": "100",
		"maxValue": "10000",
	}, "alice")

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var portfolio models.Portfolio
	if err := json.Unmarshal(w.Body.Bytes(), &portfolio); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if portfolio.Owner != "alice" {
		t.Errorf("Expected caller as owner, got %s", portfolio.Owner)
	}
}

func TestInitializePortfolio_MissingCaller(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "POST", "/api/portfolios", map[string]interface{}{}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestInitializePortfolio_InvalidJSON(t *testing.T) {
	server, _ := createTestServer()

	req := httptest.NewRequest("POST", "/api/portfolios", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-ID", "alice")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", apperrors.NewPortfolioNotFoundError("p-x"), http.StatusNotFound},
		{"unauthorized", apperrors.NewUnauthorizedError("nope"), http.StatusForbidden},
		{"duplicate", apperrors.NewDuplicateAssetError("token-a"), http.StatusConflict},
		{"risk violation", apperrors.NewRiskViolationError(types.RiskBelowMin), http.StatusUnprocessableEntity},
		{"collaborator", apperrors.NewCollaboratorFailedError("executor", nil), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, services := createTestServer()
			services.ledger.err = tt.err

			w := doRequest(server, "GET", "/api/portfolios/p-1", nil, "alice")
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.Error.Code == "" {
				t.Error("Expected a structured error code")
			}
		})
	}
}

func TestRiskEndpoint(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "GET", "/api/portfolios/p-1/risk", nil, "alice")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var report service.RiskReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("Failed to decode risk report: %v", err)
	}
	if report.Status != types.RiskOK {
		t.Errorf("Expected status ok, got %s", report.Status)
	}
	if report.PortfolioID != "p-1" {
		t.Errorf("Expected portfolio p-1, got %s", report.PortfolioID)
	}
}

func TestTransferEndpoint(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "POST", "/api/portfolios/p-1/transfers", map[string]interface{}{
		"assetId":      "token-a",
		"amount":       "10",
		"direction":    "in",
		"counterparty": "0xdeposit",
	}, "alice")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAccrueFeesEndpoint_BodyOptional(t *testing.T) {
	server, _ := createTestServer()

	// No body at all accrues without the bonus.
	w := doRequest(server, "POST", "/api/portfolios/p-1/fees/accrue", nil, "alice")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 without body, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(server, "POST", "/api/portfolios/p-1/fees/accrue", map[string]interface{}{
		"withBonus": true,
	}, "alice")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with body, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStakeEndpoints(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "POST", "/api/portfolios/p-1/stake", map[string]interface{}{
		"amount": "100",
	}, "bob")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on stake, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(server, "GET", "/api/portfolios/p-1/stake", nil, "bob")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on position, got %d", w.Code)
	}

	w = doRequest(server, "POST", "/api/portfolios/p-1/rewards/claim", nil, "bob")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on claim, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWithdrawalWorkflowEndpoints(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "POST", "/api/portfolios/p-1/withdraw-requests", map[string]interface{}{
		"assetId":     "token-a",
		"amount":      "10",
		"destination": "0xdest",
	}, "alice")
	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201 on request, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(server, "POST", "/api/withdraw-requests/w-1/approvals", nil, "bob")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on approve, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(server, "POST", "/api/withdraw-requests/w-1/execute", nil, "carol")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on execute, got %d: %s", w.Code, w.Body.String())
	}

	var executed models.PendingWithdrawal
	if err := json.Unmarshal(w.Body.Bytes(), &executed); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if executed.Status != types.WithdrawalExecuted {
		t.Errorf("Expected executed status, got %s", executed.Status)
	}

	w = doRequest(server, "POST", "/api/withdraw-requests/sweep", nil, "alice")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on sweep, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHistoryEndpoint_InvalidDate(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "GET", "/api/portfolios/p-1/history?from=not-a-date", nil, "alice")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHistoryEndpoint_DefaultsRange(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "GET", "/api/portfolios/p-1/history", nil, "alice")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGovernanceEndpoints(t *testing.T) {
	server, _ := createTestServer()

	w := doRequest(server, "POST", "/api/portfolios/p-1/governance/issue", map[string]interface{}{
		"amount": "100",
	}, "alice")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on issue, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(server, "GET", "/api/portfolios/p-1/governance", nil, "alice")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 on get, got %d", w.Code)
	}
}
