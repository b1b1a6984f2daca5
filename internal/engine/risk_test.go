package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
)

func boundedPortfolio(amount, unitValue, min, max int64) *models.Portfolio {
	return &models.Portfolio{
		ID: "p-1",
		Holdings: []models.Holding{
			{AssetID: "token-a", Amount: decimal.NewFromInt(amount), UnitValue: decimal.NewFromInt(unitValue)},
		},
		RiskBounds: models.RiskBounds{
			MinValue: decimal.NewFromInt(min),
			MaxValue: decimal.NewFromInt(max),
		},
	}
}

func TestCheckRisk(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		expected types.RiskStatus
	}{
		{"within bounds", 500, types.RiskOK},
		{"at minimum", 100, types.RiskOK},
		{"at maximum", 1000, types.RiskOK},
		{"below minimum", 50, types.RiskBelowMin},
		{"above maximum", 1500, types.RiskAboveMax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := boundedPortfolio(tt.total, 1, 100, 1000)
			assert.Equal(t, tt.expected, CheckRisk(p))
		})
	}
}

func TestAllowMutation_Healthy(t *testing.T) {
	// A healthy portfolio accepts everything under either policy.
	for _, policy := range []types.RiskPolicy{types.RiskPolicyStrict, types.RiskPolicyLenient} {
		for _, effect := range []ValueEffect{EffectIncrease, EffectDecrease, EffectNeutral} {
			assert.True(t, AllowMutation(policy, types.RiskOK, effect),
				"policy=%s effect=%s", policy, effect)
		}
	}
}

func TestAllowMutation_Strict(t *testing.T) {
	tests := []struct {
		status  types.RiskStatus
		effect  ValueEffect
		allowed bool
	}{
		{types.RiskBelowMin, EffectIncrease, true},
		{types.RiskBelowMin, EffectDecrease, false},
		{types.RiskBelowMin, EffectNeutral, false},
		{types.RiskAboveMax, EffectIncrease, false},
		{types.RiskAboveMax, EffectDecrease, true},
		{types.RiskAboveMax, EffectNeutral, false},
	}

	for _, tt := range tests {
		got := AllowMutation(types.RiskPolicyStrict, tt.status, tt.effect)
		assert.Equal(t, tt.allowed, got, "status=%s effect=%s", tt.status, tt.effect)
	}
}

func TestAllowMutation_Lenient(t *testing.T) {
	tests := []struct {
		status  types.RiskStatus
		effect  ValueEffect
		allowed bool
	}{
		{types.RiskBelowMin, EffectIncrease, true},
		{types.RiskBelowMin, EffectDecrease, false},
		{types.RiskBelowMin, EffectNeutral, true},
		{types.RiskAboveMax, EffectIncrease, false},
		{types.RiskAboveMax, EffectDecrease, true},
		{types.RiskAboveMax, EffectNeutral, true},
	}

	for _, tt := range tests {
		got := AllowMutation(types.RiskPolicyLenient, tt.status, tt.effect)
		assert.Equal(t, tt.allowed, got, "status=%s effect=%s", tt.status, tt.effect)
	}
}
