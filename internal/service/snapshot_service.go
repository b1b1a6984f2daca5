package service

import (
	"context"
	"time"

	apperrors "github.com/portfolio-engine/internal/errors"
	"github.com/portfolio-engine/internal/logging"
	"github.com/portfolio-engine/internal/types"
)

// HistoryRepository interface for the performance history store
type HistoryRepository interface {
	Record(ctx context.Context, point *types.ValuePoint) error
	RecordBatch(ctx context.Context, points []types.ValuePoint) error
	Range(ctx context.Context, portfolioID string, from, to time.Time) ([]types.ValuePoint, error)
	Latest(ctx context.Context, portfolioID string) (*types.ValuePoint, error)
}

// SnapshotService records portfolio value points and serves the performance
// history. The snapshot job calls RecordAll on a schedule; a point can also
// be captured on demand for a single portfolio.
type SnapshotService struct {
	portfolioRepo PortfolioRepository
	historyRepo   HistoryRepository
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(portfolioRepo PortfolioRepository, historyRepo HistoryRepository) *SnapshotService {
	return &SnapshotService{
		portfolioRepo: portfolioRepo,
		historyRepo:   historyRepo,
	}
}

// RecordPerformance captures the current total value of one portfolio
func (s *SnapshotService) RecordPerformance(ctx context.Context, portfolioID string) (*types.ValuePoint, error) {
	portfolio, err := s.portfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, mapPortfolioLoadError(portfolioID, err)
	}

	point := &types.ValuePoint{
		PortfolioID: portfolioID,
		TotalValue:  portfolio.TotalValue(),
		CapturedAt:  time.Now(),
	}
	if err := s.historyRepo.Record(ctx, point); err != nil {
		return nil, apperrors.NewDatabaseError("record value point", err)
	}
	return point, nil
}

// RecordAll captures a value point for every portfolio. Failures on a single
// portfolio are logged and skipped so one bad row cannot stall the sweep.
// Returns the number of points recorded.
func (s *SnapshotService) RecordAll(ctx context.Context) (int, error) {
	ids, err := s.portfolioRepo.ListIDs(ctx)
	if err != nil {
		return 0, apperrors.NewDatabaseError("list portfolio ids", err)
	}

	logger := logging.FromContext(ctx)
	now := time.Now()
	points := make([]types.ValuePoint, 0, len(ids))
	for _, id := range ids {
		portfolio, err := s.portfolioRepo.GetByID(ctx, id)
		if err != nil {
			logger.WithField("portfolio_id", id).WithError(err).Warn("Skipping portfolio snapshot")
			continue
		}
		points = append(points, types.ValuePoint{
			PortfolioID: id,
			TotalValue:  portfolio.TotalValue(),
			CapturedAt:  now,
		})
	}

	if err := s.historyRepo.RecordBatch(ctx, points); err != nil {
		return 0, apperrors.NewDatabaseError("record value points", err)
	}
	return len(points), nil
}

// History returns the value points for a portfolio within [from, to]
func (s *SnapshotService) History(ctx context.Context, portfolioID string, from, to time.Time) ([]types.ValuePoint, error) {
	points, err := s.historyRepo.Range(ctx, portfolioID, from, to)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query value history", err)
	}
	return points, nil
}

// Latest returns the most recent value point for a portfolio, or nil
func (s *SnapshotService) Latest(ctx context.Context, portfolioID string) (*types.ValuePoint, error) {
	point, err := s.historyRepo.Latest(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query value history", err)
	}
	return point, nil
}
