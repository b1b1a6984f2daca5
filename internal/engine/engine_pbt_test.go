package engine

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/models"
)

// epsilon absorbs decimal division rounding at the default precision
var epsilon = decimal.RequireFromString("0.0000000001")

func propPortfolio(a, b, c int64) *models.Portfolio {
	return &models.Portfolio{
		Holdings: []models.Holding{
			{AssetID: "token-a", Amount: decimal.NewFromInt(a), UnitValue: decimal.NewFromInt(1)},
			{AssetID: "token-b", Amount: decimal.NewFromInt(b), UnitValue: decimal.NewFromInt(2)},
			{AssetID: "token-c", Amount: decimal.NewFromInt(c), UnitValue: decimal.NewFromInt(4)},
		},
		TargetRatios: models.TargetRatios{
			"token-a": decimal.RequireFromString("0.5"),
			"token-b": decimal.RequireFromString("0.3"),
			"token-c": decimal.RequireFromString("0.2"),
		},
	}
}

func TestRebalanceProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	amounts := gen.Int64Range(1, 1_000_000)

	properties.Property("applying a plan preserves total value", prop.ForAll(
		func(a, b, c int64) bool {
			p := propPortfolio(a, b, c)
			before := p.TotalValue()
			ApplyMoves(p, PlanRebalance(p, decimal.Zero), time.Now())
			return p.TotalValue().Sub(before).Abs().LessThan(epsilon)
		},
		amounts, amounts, amounts,
	))

	properties.Property("move values are positive and never self-directed", prop.ForAll(
		func(a, b, c int64) bool {
			p := propPortfolio(a, b, c)
			for _, m := range PlanRebalance(p, decimal.Zero) {
				if !m.Value.IsPositive() || m.SellAsset == m.BuyAsset {
					return false
				}
			}
			return true
		},
		amounts, amounts, amounts,
	))

	properties.Property("planning is read-only", prop.ForAll(
		func(a, b, c int64) bool {
			p := propPortfolio(a, b, c)
			before := p.TotalValue()
			PlanRebalance(p, decimal.Zero)
			return p.TotalValue().Equal(before)
		},
		amounts, amounts, amounts,
	))

	properties.TestingRun(t)
}

func TestFeeAccrualProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("high-water mark never decreases", prop.ForAll(
		func(totalValue, mark int64) bool {
			now := time.Now()
			p := &models.Portfolio{
				Holdings: []models.Holding{
					{AssetID: "token-a", Amount: decimal.NewFromInt(totalValue), UnitValue: decimal.NewFromInt(1)},
				},
				FeeState: models.FeeState{
					ManagementRate:  decimal.RequireFromString("0.02"),
					PerformanceRate: decimal.RequireFromString("0.1"),
					HighWaterMark:   decimal.NewFromInt(mark),
					LastAccrualAt:   now.Add(-24 * time.Hour),
				},
			}
			accrual := ComputeFeeAccrual(p, now, time.Hour)
			return accrual != nil &&
				accrual.NewHighWaterMark.GreaterThanOrEqual(p.FeeState.HighWaterMark)
		},
		gen.Int64Range(0, 10_000_000),
		gen.Int64Range(0, 10_000_000),
	))

	properties.Property("pro-rata deduction removes exactly the charged value", prop.ForAll(
		func(a, b, charge int64) bool {
			now := time.Now()
			p := &models.Portfolio{
				Holdings: []models.Holding{
					{AssetID: "token-a", Amount: decimal.NewFromInt(a), UnitValue: decimal.NewFromInt(2)},
					{AssetID: "token-b", Amount: decimal.NewFromInt(b), UnitValue: decimal.NewFromInt(4)},
				},
			}
			before := p.TotalValue()
			DeductProRata(p, decimal.NewFromInt(charge), now)
			return before.Sub(p.TotalValue()).Sub(decimal.NewFromInt(charge)).Abs().LessThan(epsilon)
		},
		gen.Int64Range(1, 1_000_000),
		gen.Int64Range(1, 1_000_000),
		gen.Int64Range(1, 1000),
	))

	properties.TestingRun(t)
}
