// Package main provides the snapshot job that records portfolio value
// history. It runs once by default, or on a schedule with -interval.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

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

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	snapshotService := service.NewSnapshotService(
		storage.NewPortfolioRepository(postgres),
		storage.NewHistoryRepository(clickhouse),
	)

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

	runner := job.NewRunner("snapshot", *interval, func(ctx context.Context) (int, error) {
		return snapshotService.RecordAll(ctx)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		runner.Stop()
	}()

	runner.Run(ctx)
}
