package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
)

func TestRecordPerformance(t *testing.T) {
	repo := newMockPortfolioRepo()
	seedPortfolio(repo, "alice")
	history := &mockHistoryRepo{}
	svc := NewSnapshotService(repo, history)

	point, err := svc.RecordPerformance(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("RecordPerformance failed: %v", err)
	}

	if !point.TotalValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected total 1000, got %s", point.TotalValue)
	}
	if len(history.points) != 1 {
		t.Errorf("Expected 1 recorded point, got %d", len(history.points))
	}
}

func TestRecordPerformance_UnknownPortfolio(t *testing.T) {
	svc := NewSnapshotService(newMockPortfolioRepo(), &mockHistoryRepo{})

	_, err := svc.RecordPerformance(context.Background(), "missing")
	if serviceErrorCode(err) != types.ErrCodePortfolioNotFound {
		t.Errorf("Expected PORTFOLIO_NOT_FOUND, got %v", err)
	}
}

func TestRecordAll(t *testing.T) {
	repo := newMockPortfolioRepo()
	seedPortfolio(repo, "alice")
	repo.portfolios["p-2"] = &models.Portfolio{
		ID:    "p-2",
		Owner: "bob",
		Holdings: []models.Holding{
			{AssetID: "token-a", Amount: decimal.NewFromInt(5), UnitValue: decimal.NewFromInt(2)},
		},
	}
	history := &mockHistoryRepo{}
	svc := NewSnapshotService(repo, history)

	recorded, err := svc.RecordAll(context.Background())
	if err != nil {
		t.Fatalf("RecordAll failed: %v", err)
	}
	if recorded != 2 {
		t.Errorf("Expected 2 recorded points, got %d", recorded)
	}
	if len(history.points) != 2 {
		t.Errorf("Expected 2 persisted points, got %d", len(history.points))
	}
}

func TestHistoryAndLatest(t *testing.T) {
	repo := newMockPortfolioRepo()
	seedPortfolio(repo, "alice")
	now := time.Now()
	history := &mockHistoryRepo{points: []types.ValuePoint{
		{PortfolioID: "p-1", TotalValue: decimal.NewFromInt(900), CapturedAt: now.Add(-2 * time.Hour)},
		{PortfolioID: "p-1", TotalValue: decimal.NewFromInt(1000), CapturedAt: now.Add(-time.Hour)},
		{PortfolioID: "p-other", TotalValue: decimal.NewFromInt(5), CapturedAt: now},
	}}
	svc := NewSnapshotService(repo, history)

	points, err := svc.History(context.Background(), "p-1", now.Add(-3*time.Hour), now)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("Expected 2 points in range, got %d", len(points))
	}

	latest, err := svc.Latest(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || !latest.TotalValue.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected latest total 1000, got %v", latest)
	}
}
