package models

import (
	"time"

	"github.com/portfolio-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Holding represents one asset's amount and valuation within a portfolio.
// Amount and unit value are mutated independently: amount by transfers and
// withdrawals, unit value by oracle or manual updates.
type Holding struct {
	AssetID       types.AssetID   `json:"assetId" db:"asset_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	UnitValue     decimal.Decimal `json:"unitValue" db:"unit_value"`
	LastUpdatedAt time.Time       `json:"lastUpdatedAt" db:"last_updated_at"`
}

// Value returns amount * unit value for this holding
func (h *Holding) Value() decimal.Decimal {
	return h.Amount.Mul(h.UnitValue)
}

// RiskBounds holds the configured minimum and maximum acceptable total value
type RiskBounds struct {
	MinValue decimal.Decimal `json:"minValue" db:"min_value"`
	MaxValue decimal.Decimal `json:"maxValue" db:"max_value"`
}

// FeeState holds fee configuration and accrual bookkeeping
type FeeState struct {
	ManagementRate  decimal.Decimal `json:"managementRate" db:"management_rate"`
	PerformanceRate decimal.Decimal `json:"performanceRate" db:"performance_rate"`
	HighWaterMark   decimal.Decimal `json:"highWaterMark" db:"high_water_mark"`
	LastAccrualAt   time.Time       `json:"lastAccrualAt" db:"last_accrual_at"`
}

// MultisigConfig holds the signer set and approval threshold for withdrawals
type MultisigConfig struct {
	Signers   []types.Identity `json:"signers" db:"signers"`
	Threshold int              `json:"threshold" db:"threshold"`
}

// HasSigner reports whether the identity is part of the signer set
func (m *MultisigConfig) HasSigner(id types.Identity) bool {
	for _, s := range m.Signers {
		if s == id {
			return true
		}
	}
	return false
}

// TargetRatios maps asset id to its configured target fraction of total
// value. A nil map means rebalancing is not configured for the portfolio.
type TargetRatios map[types.AssetID]decimal.Decimal

// Sum returns the sum of all configured ratios
func (t TargetRatios) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range t {
		sum = sum.Add(r)
	}
	return sum
}

// Portfolio is the root entity of the engine. It is exclusively owned by its
// creator; every operation loads it by ID, stages a clone, and commits the
// clone only when the whole transition succeeds.
type Portfolio struct {
	ID               string          `json:"id" db:"id"`
	Owner            types.Identity  `json:"owner" db:"owner"`
	Holdings         []Holding       `json:"holdings"`
	RiskBounds       RiskBounds      `json:"riskBounds"`
	FeeState         FeeState        `json:"feeState"`
	TargetRatios     TargetRatios    `json:"targetRatios,omitempty"`
	MultisigConfig   *MultisigConfig `json:"multisigConfig,omitempty"`
	GovernanceMintID *string         `json:"governanceMintId,omitempty" db:"governance_mint_id"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// TotalValue returns the portfolio's total value. It is always computed by
// folding over holdings and never tracked as separate state, so value
// conservation cannot be violated by bookkeeping drift.
func (p *Portfolio) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for i := range p.Holdings {
		total = total.Add(p.Holdings[i].Value())
	}
	return total
}

// Holding returns a pointer to the holding with the given asset id, or nil
func (p *Portfolio) Holding(assetID types.AssetID) *Holding {
	for i := range p.Holdings {
		if p.Holdings[i].AssetID == assetID {
			return &p.Holdings[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the portfolio. Operations mutate the clone
// and swap it in on commit; the original is never touched on failure paths.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Holdings = make([]Holding, len(p.Holdings))
	copy(cp.Holdings, p.Holdings)
	if p.TargetRatios != nil {
		cp.TargetRatios = make(TargetRatios, len(p.TargetRatios))
		for k, v := range p.TargetRatios {
			cp.TargetRatios[k] = v
		}
	}
	if p.MultisigConfig != nil {
		mc := *p.MultisigConfig
		mc.Signers = make([]types.Identity, len(p.MultisigConfig.Signers))
		copy(mc.Signers, p.MultisigConfig.Signers)
		cp.MultisigConfig = &mc
	}
	if p.GovernanceMintID != nil {
		id := *p.GovernanceMintID
		cp.GovernanceMintID = &id
	}
	return &cp
}

// MultisigRequired reports whether direct withdrawals are gated by the
// approval workflow
func (p *Portfolio) MultisigRequired() bool {
	return p.MultisigConfig != nil && p.MultisigConfig.Threshold > 1
}
