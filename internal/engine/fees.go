package engine

import (
	"time"

	"github.com/portfolio-engine/internal/models"
	"github.com/shopspring/decimal"
)

// secondsPerYear is the accrual basis for the management fee (365-day year)
const secondsPerYear = 365 * 24 * 60 * 60

// FeeAccrual is the ephemeral result of one accrual. It is never persisted
// standalone: the service folds it into the portfolio's fee state and reduces
// holdings pro-rata by the charged total.
type FeeAccrual struct {
	ManagementFee    decimal.Decimal `json:"managementFee"`
	PerformanceFee   decimal.Decimal `json:"performanceFee"`
	PerformanceBonus decimal.Decimal `json:"performanceBonus"`
	NewHighWaterMark decimal.Decimal `json:"newHighWaterMark"`
	AccrualAt        time.Time       `json:"accrualAt"`
}

// Total returns the full amount of value extracted by this accrual
func (a *FeeAccrual) Total() decimal.Decimal {
	return a.ManagementFee.Add(a.PerformanceFee).Add(a.PerformanceBonus)
}

// ComputeFeeAccrual calculates the fees owed at `now`. It returns nil when
// the elapsed time since the last accrual is below minInterval, which makes
// repeated calls inside the interval idempotent by construction.
//
// Management fee: rate * total value * elapsed fraction of a 365-day year.
// Performance fee: rate * gain above the high-water mark, measured after the
// management fee has been deducted; the mark only ever rises.
func ComputeFeeAccrual(p *models.Portfolio, now time.Time, minInterval time.Duration) *FeeAccrual {
	elapsed := now.Sub(p.FeeState.LastAccrualAt)
	if elapsed < minInterval {
		return nil
	}

	total := p.TotalValue()

	elapsedFraction := decimal.NewFromFloat(elapsed.Seconds()).
		Div(decimal.NewFromInt(secondsPerYear))
	managementFee := p.FeeState.ManagementRate.Mul(total).Mul(elapsedFraction)
	// A long-idle portfolio (rate * elapsed fraction >= 1) owes at most what
	// it holds; the fee never exceeds total value.
	if managementFee.GreaterThan(total) {
		managementFee = total
	}

	afterManagement := total.Sub(managementFee)

	performanceFee := decimal.Zero
	newMark := p.FeeState.HighWaterMark
	if afterManagement.GreaterThan(p.FeeState.HighWaterMark) {
		gain := afterManagement.Sub(p.FeeState.HighWaterMark)
		performanceFee = p.FeeState.PerformanceRate.Mul(gain)
		newMark = afterManagement
	}

	return &FeeAccrual{
		ManagementFee:    managementFee,
		PerformanceFee:   performanceFee,
		PerformanceBonus: decimal.Zero,
		NewHighWaterMark: newMark,
		AccrualAt:        now,
	}
}

// ApplyPerformanceBonus adds the dynamic bonus fee on top of a computed
// accrual: when total value exceeds the bonus threshold, an extra bonusRate
// share of total value is charged as performance fee.
func ApplyPerformanceBonus(accrual *FeeAccrual, totalValue, bonusThreshold, bonusRate decimal.Decimal) {
	if accrual == nil || !totalValue.GreaterThan(bonusThreshold) {
		return
	}
	accrual.PerformanceBonus = totalValue.Mul(bonusRate)
}

// DeductProRata reduces each holding's amount so that the portfolio loses
// `value` in total, split across holdings by their current value share.
// Holdings with a zero unit value are skipped: their value share is zero, so
// they owe nothing. A holding is at most emptied, never driven negative; when
// the charge exceeds a holding's share the deduction clamps at its full
// amount. Returns the per-asset value deducted.
func DeductProRata(p *models.Portfolio, value decimal.Decimal, now time.Time) map[string]decimal.Decimal {
	total := p.TotalValue()
	deducted := make(map[string]decimal.Decimal)
	if total.IsZero() || value.IsZero() {
		return deducted
	}

	for i := range p.Holdings {
		h := &p.Holdings[i]
		if h.UnitValue.IsZero() {
			continue
		}
		share := h.Value().Div(total)
		valueShare := value.Mul(share)
		amountShare := valueShare.Div(h.UnitValue)
		if amountShare.GreaterThan(h.Amount) {
			amountShare = h.Amount
			valueShare = amountShare.Mul(h.UnitValue)
		}
		h.Amount = h.Amount.Sub(amountShare)
		h.LastUpdatedAt = now
		deducted[string(h.AssetID)] = valueShare
	}
	return deducted
}
