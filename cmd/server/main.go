// Package main provides the API server entry point for the portfolio engine.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio-engine/internal/adapter"
	"github.com/portfolio-engine/internal/api"
	"github.com/portfolio-engine/internal/config"
	"github.com/portfolio-engine/internal/logging"
	"github.com/portfolio-engine/internal/service"
	"github.com/portfolio-engine/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize collaborators
	var executor adapter.TransferExecutor
	if cfg.Transfer.RPCEndpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		evm, err := adapter.NewEVMExecutor(ctx, &adapter.EVMExecutorConfig{
			RPCEndpoint:    cfg.Transfer.RPCEndpoint,
			PrivateKeyHex:  cfg.Transfer.PrivateKey,
			TokenContracts: cfg.Transfer.TokenContracts,
			GasLimit:       cfg.Transfer.GasLimit,
		})
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("Failed to create EVM transfer executor")
		}
		executor = evm
		logger.WithField("rpc", cfg.Transfer.RPCEndpoint).Info("EVM transfer executor initialized")
	} else {
		executor = adapter.NewLoggingExecutor()
		logger.Warn("No RPC endpoint configured, using logging transfer executor")
	}

	var oracle adapter.PriceOracle
	if cfg.Oracle.BaseURL != "" {
		oracle, err = adapter.NewHTTPOracle(&adapter.HTTPOracleConfig{
			BaseURL: cfg.Oracle.BaseURL,
			APIKey:  cfg.Oracle.APIKey,
			Timeout: cfg.Oracle.Timeout,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create price oracle")
		}
		logger.WithField("url", cfg.Oracle.BaseURL).Info("HTTP price oracle initialized")
	} else {
		oracle = adapter.NewStaticOracle(nil)
		logger.Warn("No oracle URL configured, using static price oracle")
	}

	// Initialize repositories
	portfolioRepo := storage.NewPortfolioRepository(postgres)
	stakingRepo := storage.NewStakingRepository(postgres)
	withdrawalRepo := storage.NewWithdrawalRepository(postgres)
	mintRepo := storage.NewMintRepository(postgres)
	historyRepo := storage.NewHistoryRepository(clickhouse)

	// Initialize services
	logger.Info("Initializing services...")

	ledgerService := service.NewLedgerService(
		portfolioRepo, executor, oracle, redis,
		cfg.Engine.RiskPolicy, cfg.Engine.FlashLoanFeeRate)
	feeService := service.NewFeeService(
		portfolioRepo, executor, cfg.Engine.RiskPolicy, cfg.Engine.MinAccrualInterval,
		cfg.Engine.FeeRecipient, cfg.Engine.BonusThreshold, cfg.Engine.BonusRate)
	rebalanceService := service.NewRebalanceService(
		portfolioRepo, executor, cfg.Engine.RiskPolicy, cfg.Engine.DefaultTolerance)
	stakingService := service.NewStakingService(portfolioRepo, stakingRepo, executor)
	multisigService := service.NewMultisigService(
		portfolioRepo, withdrawalRepo, executor,
		cfg.Engine.RiskPolicy, cfg.Engine.WithdrawalTTL)
	snapshotService := service.NewSnapshotService(portfolioRepo, historyRepo)
	governanceService := service.NewGovernanceService(portfolioRepo, mintRepo)

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RPS:             cfg.Server.RPS,
	}

	server := api.NewServer(serverConfig,
		ledgerService, feeService, rebalanceService, stakingService,
		multisigService, snapshotService, governanceService)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
