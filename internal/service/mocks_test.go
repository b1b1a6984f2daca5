package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/storage"
	"github.com/portfolio-engine/internal/types"
)

// Mock repositories and collaborators for testing

type mockPortfolioRepo struct {
	portfolios map[string]*models.Portfolio
	failUpdate error
}

func newMockPortfolioRepo() *mockPortfolioRepo {
	return &mockPortfolioRepo{portfolios: make(map[string]*models.Portfolio)}
}

func (m *mockPortfolioRepo) Create(ctx context.Context, portfolio *models.Portfolio) error {
	if portfolio.ID == "" {
		portfolio.ID = fmt.Sprintf("test-portfolio-%d", len(m.portfolios)+1)
	}
	m.portfolios[portfolio.ID] = portfolio
	return nil
}

func (m *mockPortfolioRepo) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	if p, ok := m.portfolios[id]; ok {
		return p, nil
	}
	return nil, storage.ErrPortfolioNotFound
}

func (m *mockPortfolioRepo) Update(ctx context.Context, portfolio *models.Portfolio) error {
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, ok := m.portfolios[portfolio.ID]; !ok {
		return storage.ErrPortfolioNotFound
	}
	m.portfolios[portfolio.ID] = portfolio
	return nil
}

func (m *mockPortfolioRepo) ListByOwner(ctx context.Context, owner types.Identity) ([]string, error) {
	var ids []string
	for id, p := range m.portfolios {
		if p.Owner == owner {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockPortfolioRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range m.portfolios {
		ids = append(ids, id)
	}
	return ids, nil
}

type stakeKey struct {
	portfolioID string
	staker      types.Identity
}

type mockStakingRepo struct {
	pools   map[string]*models.StakingPool
	records map[stakeKey]*models.StakeRecord
}

func newMockStakingRepo() *mockStakingRepo {
	return &mockStakingRepo{
		pools:   make(map[string]*models.StakingPool),
		records: make(map[stakeKey]*models.StakeRecord),
	}
}

func (m *mockStakingRepo) GetPool(ctx context.Context, portfolioID string) (*models.StakingPool, error) {
	if pool, ok := m.pools[portfolioID]; ok {
		return pool, nil
	}
	// Never-staked portfolios read as an empty pool.
	return &models.StakingPool{PortfolioID: portfolioID}, nil
}

func (m *mockStakingRepo) GetRecord(ctx context.Context, portfolioID string, staker types.Identity) (*models.StakeRecord, error) {
	if r, ok := m.records[stakeKey{portfolioID, staker}]; ok {
		return r, nil
	}
	return nil, storage.ErrStakeNotFound
}

func (m *mockStakingRepo) SaveStake(ctx context.Context, pool *models.StakingPool, record *models.StakeRecord) error {
	m.pools[pool.PortfolioID] = pool
	// Mirrors the Postgres repo: fully unwound records are deleted.
	if record.StakedAmount.IsZero() && record.Claimable.IsZero() {
		delete(m.records, stakeKey{record.PortfolioID, record.StakerID})
		return nil
	}
	m.records[stakeKey{record.PortfolioID, record.StakerID}] = record
	return nil
}

func (m *mockStakingRepo) SavePool(ctx context.Context, pool *models.StakingPool) error {
	m.pools[pool.PortfolioID] = pool
	return nil
}

func (m *mockStakingRepo) ListRecords(ctx context.Context, portfolioID string) ([]*models.StakeRecord, error) {
	var records []*models.StakeRecord
	for key, r := range m.records {
		if key.portfolioID == portfolioID {
			records = append(records, r)
		}
	}
	return records, nil
}

type mockWithdrawalRepo struct {
	withdrawals   map[string]*models.PendingWithdrawal
	portfolioRepo *mockPortfolioRepo
}

func newMockWithdrawalRepo(portfolioRepo *mockPortfolioRepo) *mockWithdrawalRepo {
	return &mockWithdrawalRepo{
		withdrawals:   make(map[string]*models.PendingWithdrawal),
		portfolioRepo: portfolioRepo,
	}
}

func (m *mockWithdrawalRepo) Create(ctx context.Context, w *models.PendingWithdrawal) error {
	m.withdrawals[w.ID] = w
	return nil
}

func (m *mockWithdrawalRepo) GetByID(ctx context.Context, id string) (*models.PendingWithdrawal, error) {
	if w, ok := m.withdrawals[id]; ok {
		return w, nil
	}
	return nil, storage.ErrWithdrawalNotFound
}

func (m *mockWithdrawalRepo) Update(ctx context.Context, w *models.PendingWithdrawal) error {
	if _, ok := m.withdrawals[w.ID]; !ok {
		return storage.ErrWithdrawalNotFound
	}
	m.withdrawals[w.ID] = w
	return nil
}

func (m *mockWithdrawalRepo) SaveExecution(ctx context.Context, w *models.PendingWithdrawal, portfolio *models.Portfolio) error {
	// Mirrors the transactional repo: both rows or neither.
	if _, ok := m.withdrawals[w.ID]; !ok {
		return storage.ErrWithdrawalNotFound
	}
	if err := m.portfolioRepo.Update(ctx, portfolio); err != nil {
		return err
	}
	m.withdrawals[w.ID] = w
	return nil
}

func (m *mockWithdrawalRepo) ListPending(ctx context.Context, portfolioID string) ([]*models.PendingWithdrawal, error) {
	var pending []*models.PendingWithdrawal
	for _, w := range m.withdrawals {
		if w.PortfolioID == portfolioID && w.Status == types.WithdrawalPending {
			pending = append(pending, w)
		}
	}
	return pending, nil
}

func (m *mockWithdrawalRepo) ListExpired(ctx context.Context, now time.Time) ([]*models.PendingWithdrawal, error) {
	var expired []*models.PendingWithdrawal
	for _, w := range m.withdrawals {
		if w.Status == types.WithdrawalPending && w.ExpiredAt(now) {
			expired = append(expired, w)
		}
	}
	return expired, nil
}

type mockHistoryRepo struct {
	points []types.ValuePoint
}

func (m *mockHistoryRepo) Record(ctx context.Context, point *types.ValuePoint) error {
	m.points = append(m.points, *point)
	return nil
}

func (m *mockHistoryRepo) RecordBatch(ctx context.Context, points []types.ValuePoint) error {
	m.points = append(m.points, points...)
	return nil
}

func (m *mockHistoryRepo) Range(ctx context.Context, portfolioID string, from, to time.Time) ([]types.ValuePoint, error) {
	var result []types.ValuePoint
	for _, p := range m.points {
		if p.PortfolioID == portfolioID && !p.CapturedAt.Before(from) && !p.CapturedAt.After(to) {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *mockHistoryRepo) Latest(ctx context.Context, portfolioID string) (*types.ValuePoint, error) {
	var latest *types.ValuePoint
	for i := range m.points {
		p := &m.points[i]
		if p.PortfolioID != portfolioID {
			continue
		}
		if latest == nil || p.CapturedAt.After(latest.CapturedAt) {
			latest = p
		}
	}
	return latest, nil
}

type mockMintRepo struct {
	mints         map[string]*models.GovernanceMint
	portfolioRepo *mockPortfolioRepo
	shouldFail    bool
}

func newMockMintRepo(portfolioRepo *mockPortfolioRepo) *mockMintRepo {
	return &mockMintRepo{
		mints:         make(map[string]*models.GovernanceMint),
		portfolioRepo: portfolioRepo,
	}
}

func (m *mockMintRepo) GetByPortfolio(ctx context.Context, portfolioID string) (*models.GovernanceMint, error) {
	if mint, ok := m.mints[portfolioID]; ok {
		return mint, nil
	}
	return nil, storage.ErrMintNotFound
}

// SaveIssuance mirrors the transactional repository: the mint and portfolio
// either both land or neither does.
func (m *mockMintRepo) SaveIssuance(ctx context.Context, mint *models.GovernanceMint, portfolio *models.Portfolio) error {
	if m.shouldFail {
		return fmt.Errorf("save issuance failed")
	}
	if mint.ID == "" {
		mint.ID = fmt.Sprintf("mint-%d", len(m.mints)+1)
	}
	m.mints[mint.PortfolioID] = mint
	if portfolio != nil {
		m.portfolioRepo.portfolios[portfolio.ID] = portfolio
	}
	return nil
}

// mockExecutor records confirmed intents and optionally rejects them all
type mockExecutor struct {
	intents    []*types.TransferIntent
	shouldFail bool
}

func (m *mockExecutor) ExecuteTransfer(ctx context.Context, intent *types.TransferIntent) error {
	if m.shouldFail {
		return fmt.Errorf("transfer rejected")
	}
	m.intents = append(m.intents, intent)
	return nil
}

// mockPriceCache is a map-backed price cache
type mockPriceCache struct {
	prices map[types.AssetID]decimal.Decimal
}

func newMockPriceCache() *mockPriceCache {
	return &mockPriceCache{prices: make(map[types.AssetID]decimal.Decimal)}
}

func (m *mockPriceCache) GetUnitValue(ctx context.Context, assetID types.AssetID) (decimal.Decimal, error) {
	if v, ok := m.prices[assetID]; ok {
		return v, nil
	}
	return decimal.Zero, storage.ErrPriceNotCached
}

func (m *mockPriceCache) SetUnitValue(ctx context.Context, assetID types.AssetID, value decimal.Decimal) error {
	m.prices[assetID] = value
	return nil
}

// Fixtures

func seedPortfolio(repo *mockPortfolioRepo, owner types.Identity) *models.Portfolio {
	p := &models.Portfolio{
		ID:    "p-1",
		Owner: owner,
		Holdings: []models.Holding{
			{AssetID: "token-a", Amount: decimal.NewFromInt(60), UnitValue: decimal.NewFromInt(10)},
			{AssetID: "token-b", Amount: decimal.NewFromInt(40), UnitValue: decimal.NewFromInt(10)},
		},
		RiskBounds: models.RiskBounds{
			MinValue: decimal.NewFromInt(100),
			MaxValue: decimal.NewFromInt(100000),
		},
		FeeState: models.FeeState{
			ManagementRate:  decimal.RequireFromString("0.02"),
			PerformanceRate: decimal.RequireFromString("0.1"),
			LastAccrualAt:   time.Now().Add(-365 * 24 * time.Hour / 4),
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	repo.portfolios[p.ID] = p
	return p
}

func serviceErrorCode(err error) string {
	type coded interface{ ToServiceError() *types.ServiceError }
	if c, ok := err.(coded); ok {
		return c.ToServiceError().Code
	}
	return ""
}
