// Package main provides the sweeper job that expires overdue multisig
// withdrawal requests. Expired requests never execute; this job flips them
// to the expired status so they stop collecting approvals.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio-engine/internal/adapter"
	"github.com/portfolio-engine/internal/config"
	"github.com/portfolio-engine/internal/job"
	"github.com/portfolio-engine/internal/logging"
	"github.com/portfolio-engine/internal/service"
	"github.com/portfolio-engine/internal/storage"
)

func main() {
	interval := flag.Duration("interval", 0, "Run on this interval; 0 runs once and exits")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// The sweeper only flips statuses; it never executes transfers.
	multisigService := service.NewMultisigService(
		storage.NewPortfolioRepository(postgres),
		storage.NewWithdrawalRepository(postgres),
		adapter.NewLoggingExecutor(),
		cfg.Engine.RiskPolicy,
		cfg.Engine.WithdrawalTTL,
	)

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

	runner := job.NewRunner("sweeper", *interval, func(ctx context.Context) (int, error) {
		return multisigService.SweepExpired(ctx, time.Now())
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		runner.Stop()
	}()

	runner.Run(ctx)
}
