// Package engine implements the pure state-transition core of the portfolio
// engine: risk checks, fee accrual math, and rebalance planning. Functions in
// this package never touch storage or collaborators; they compute staged
// results that the service layer commits atomically.
package engine

import (
	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
)

// ValueEffect classifies how a mutation moves total portfolio value
type ValueEffect string

const (
	// EffectIncrease represents deposits and asset additions
	EffectIncrease ValueEffect = "increase"
	// EffectDecrease represents withdrawals and fee extraction
	EffectDecrease ValueEffect = "decrease"
	// EffectNeutral represents redistribution without value change
	EffectNeutral ValueEffect = "neutral"
)

// CheckRisk evaluates the portfolio's total value against its risk bounds.
// It is a pure predicate over the folded total value.
func CheckRisk(p *models.Portfolio) types.RiskStatus {
	total := p.TotalValue()
	if total.LessThan(p.RiskBounds.MinValue) {
		return types.RiskBelowMin
	}
	if total.GreaterThan(p.RiskBounds.MaxValue) {
		return types.RiskAboveMax
	}
	return types.RiskOK
}

// AllowMutation decides whether a mutation with the given value effect is
// permitted under the policy and the current risk status. Under the strict
// policy a violated portfolio only accepts mutations that move total value
// back toward the bounds; under the lenient policy only mutations that move
// it further away are rejected.
func AllowMutation(policy types.RiskPolicy, status types.RiskStatus, effect ValueEffect) bool {
	if !status.Violated() {
		return true
	}

	switch policy {
	case types.RiskPolicyLenient:
		if status == types.RiskBelowMin {
			return effect != EffectDecrease
		}
		return effect != EffectIncrease
	default:
		// strict: only risk-reducing mutations pass
		if status == types.RiskBelowMin {
			return effect == EffectIncrease
		}
		return effect == EffectDecrease
	}
}
