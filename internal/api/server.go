// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/service"
	"github.com/portfolio-engine/internal/types"
)

// Service interfaces for dependency injection and testing

// LedgerServiceInterface defines the ledger operations used by the server
type LedgerServiceInterface interface {
	InitializePortfolio(ctx context.Context, input *service.InitializePortfolioInput) (*models.Portfolio, error)
	GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error)
	CheckRisk(ctx context.Context, id string) (*service.RiskReport, error)
	ListPortfolios(ctx context.Context, owner types.Identity) ([]string, error)
	AddAsset(ctx context.Context, caller types.Identity, portfolioID string, input *service.AddAssetInput) (*models.Portfolio, error)
	UpdateValue(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID, unitValue decimal.Decimal) (*models.Portfolio, error)
	RefreshValue(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID) (*models.Portfolio, error)
	Transfer(ctx context.Context, caller types.Identity, portfolioID string, input *service.TransferInput) (*models.Portfolio, error)
	Withdraw(ctx context.Context, caller types.Identity, portfolioID string, input *service.WithdrawInput) (*models.Portfolio, error)
	ProvideLiquidity(ctx context.Context, caller types.Identity, portfolioID string, assetID types.AssetID, amount decimal.Decimal) (*models.Portfolio, error)
	FlashLoan(ctx context.Context, caller types.Identity, portfolioID string, input *service.FlashLoanInput) (*service.FlashLoanResult, error)
	SetTargetRatios(ctx context.Context, caller types.Identity, portfolioID string, ratios models.TargetRatios) (*models.Portfolio, error)
}

// FeeServiceInterface defines the fee operations used by the server
type FeeServiceInterface interface {
	AccrueFees(ctx context.Context, caller types.Identity, portfolioID string, withBonus bool) (*service.AccrueFeesResult, error)
}

// RebalanceServiceInterface defines the rebalance operations used by the server
type RebalanceServiceInterface interface {
	Rebalance(ctx context.Context, caller types.Identity, portfolioID string, tolerance *decimal.Decimal) (*service.RebalanceResult, error)
	AutoRebalance(ctx context.Context, portfolioID string) (*service.RebalanceResult, error)
}

// StakingServiceInterface defines the staking operations used by the server
type StakingServiceInterface interface {
	Stake(ctx context.Context, staker types.Identity, portfolioID string, amount decimal.Decimal) (*service.StakePosition, error)
	Unstake(ctx context.Context, staker types.Identity, portfolioID string, amount decimal.Decimal) (*service.StakePosition, error)
	DistributeRewards(ctx context.Context, caller types.Identity, portfolioID string, reward decimal.Decimal) (*service.DistributeResult, error)
	Claim(ctx context.Context, staker types.Identity, portfolioID string) (*service.ClaimResult, error)
	GetPosition(ctx context.Context, staker types.Identity, portfolioID string) (*service.StakePosition, error)
}

// MultisigServiceInterface defines the multisig withdrawal operations used by the server
type MultisigServiceInterface interface {
	RequestWithdrawal(ctx context.Context, requester types.Identity, portfolioID string, input *service.RequestWithdrawalInput) (*models.PendingWithdrawal, error)
	Approve(ctx context.Context, signer types.Identity, requestID string) (*models.PendingWithdrawal, error)
	Execute(ctx context.Context, caller types.Identity, requestID string) (*models.PendingWithdrawal, error)
	Cancel(ctx context.Context, caller types.Identity, requestID string) (*models.PendingWithdrawal, error)
	GetRequest(ctx context.Context, requestID string) (*models.PendingWithdrawal, error)
	ListPending(ctx context.Context, portfolioID string) ([]*models.PendingWithdrawal, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// SnapshotServiceInterface defines the history operations used by the server
type SnapshotServiceInterface interface {
	RecordPerformance(ctx context.Context, portfolioID string) (*types.ValuePoint, error)
	History(ctx context.Context, portfolioID string, from, to time.Time) ([]types.ValuePoint, error)
	Latest(ctx context.Context, portfolioID string) (*types.ValuePoint, error)
}

// GovernanceServiceInterface defines the governance issuance operations used by the server
type GovernanceServiceInterface interface {
	Issue(ctx context.Context, caller types.Identity, portfolioID string, amount decimal.Decimal) (*models.GovernanceMint, error)
	Get(ctx context.Context, portfolioID string) (*models.GovernanceMint, error)
}

// Server represents the HTTP API server.
type Server struct {
	router            *mux.Router
	httpServer        *http.Server
	ledgerService     LedgerServiceInterface
	feeService        FeeServiceInterface
	rebalanceService  RebalanceServiceInterface
	stakingService    StakingServiceInterface
	multisigService   MultisigServiceInterface
	snapshotService   SnapshotServiceInterface
	governanceService GovernanceServiceInterface
	config            *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RPS             int // Requests per second per caller
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	ledgerService LedgerServiceInterface,
	feeService FeeServiceInterface,
	rebalanceService RebalanceServiceInterface,
	stakingService StakingServiceInterface,
	multisigService MultisigServiceInterface,
	snapshotService SnapshotServiceInterface,
	governanceService GovernanceServiceInterface,
) *Server {
	s := &Server{
		router:            mux.NewRouter(),
		ledgerService:     ledgerService,
		feeService:        feeService,
		rebalanceService:  rebalanceService,
		stakingService:    stakingService,
		multisigService:   multisigService,
		snapshotService:   snapshotService,
		governanceService: governanceService,
		config:            config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Portfolio lifecycle and ledger endpoints
	api.HandleFunc("/portfolios", s.handleInitializePortfolio).Methods("POST")
	api.HandleFunc("/portfolios", s.handleListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/{id}", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}/risk", s.handleCheckRisk).Methods("GET")
	api.HandleFunc("/portfolios/{id}/assets", s.handleAddAsset).Methods("POST")
	api.HandleFunc("/portfolios/{id}/assets/{asset}/value", s.handleUpdateValue).Methods("PUT")
	api.HandleFunc("/portfolios/{id}/assets/{asset}/value/refresh", s.handleRefreshValue).Methods("POST")
	api.HandleFunc("/portfolios/{id}/ratios", s.handleSetTargetRatios).Methods("PUT")
	api.HandleFunc("/portfolios/{id}/transfers", s.handleTransfer).Methods("POST")
	api.HandleFunc("/portfolios/{id}/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/portfolios/{id}/liquidity", s.handleProvideLiquidity).Methods("POST")
	api.HandleFunc("/portfolios/{id}/flash-loans", s.handleFlashLoan).Methods("POST")

	// Fee and rebalance endpoints
	api.HandleFunc("/portfolios/{id}/fees/accrue", s.handleAccrueFees).Methods("POST")
	api.HandleFunc("/portfolios/{id}/rebalance", s.handleRebalance).Methods("POST")
	api.HandleFunc("/portfolios/{id}/rebalance/auto", s.handleAutoRebalance).Methods("POST")

	// Staking endpoints
	api.HandleFunc("/portfolios/{id}/stake", s.handleStake).Methods("POST")
	api.HandleFunc("/portfolios/{id}/stake", s.handleGetPosition).Methods("GET")
	api.HandleFunc("/portfolios/{id}/unstake", s.handleUnstake).Methods("POST")
	api.HandleFunc("/portfolios/{id}/rewards/distribute", s.handleDistributeRewards).Methods("POST")
	api.HandleFunc("/portfolios/{id}/rewards/claim", s.handleClaim).Methods("POST")

	// Multisig withdrawal endpoints
	api.HandleFunc("/portfolios/{id}/withdraw-requests", s.handleRequestWithdrawal).Methods("POST")
	api.HandleFunc("/portfolios/{id}/withdraw-requests", s.handleListWithdrawals).Methods("GET")
	api.HandleFunc("/withdraw-requests/{req}", s.handleGetWithdrawal).Methods("GET")
	api.HandleFunc("/withdraw-requests/{req}/approvals", s.handleApproveWithdrawal).Methods("POST")
	api.HandleFunc("/withdraw-requests/{req}/execute", s.handleExecuteWithdrawal).Methods("POST")
	api.HandleFunc("/withdraw-requests/{req}/cancel", s.handleCancelWithdrawal).Methods("POST")
	api.HandleFunc("/withdraw-requests/sweep", s.handleSweepWithdrawals).Methods("POST")

	// History and governance endpoints
	api.HandleFunc("/portfolios/{id}/snapshots", s.handleRecordSnapshot).Methods("POST")
	api.HandleFunc("/portfolios/{id}/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/portfolios/{id}/governance/issue", s.handleIssueGovernance).Methods("POST")
	api.HandleFunc("/portfolios/{id}/governance", s.handleGetGovernance).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-engine",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// callerID extracts the caller identity from the request headers
func callerID(r *http.Request) types.Identity {
	return types.Identity(r.Header.Get(callerHeader))
}
