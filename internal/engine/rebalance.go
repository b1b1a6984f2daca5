package engine

import (
	"sort"
	"time"

	"github.com/portfolio-engine/internal/models"
	"github.com/portfolio-engine/internal/types"
	"github.com/shopspring/decimal"
)

// RebalanceMove moves `value` from one over-weight asset to one under-weight
// asset. Moves are value-denominated so that a plan is value-neutral by
// construction: the value leaving sells always equals the value entering buys.
type RebalanceMove struct {
	SellAsset types.AssetID   `json:"sellAsset"`
	BuyAsset  types.AssetID   `json:"buyAsset"`
	Value     decimal.Decimal `json:"value"`
}

type candidate struct {
	assetID   types.AssetID
	deviation decimal.Decimal
	value     decimal.Decimal // excess (over) or deficit (under), in value terms
}

// PlanRebalance computes the corrective move sequence for a portfolio with
// configured target ratios. An asset is a candidate when the absolute
// deviation of its current value share from its target exceeds tolerance.
// Candidates are corrected largest deviation first, ties broken by ascending
// asset id, and moves are generated until every candidate is on target or
// sell-side value runs out. An empty plan means no rebalance is needed.
//
// Assets whose target cannot be acted on (no holding, or a zero unit value,
// so value cannot be converted to units) are excluded from the buy side.
func PlanRebalance(p *models.Portfolio, tolerance decimal.Decimal) []RebalanceMove {
	total := p.TotalValue()
	if total.IsZero() || len(p.TargetRatios) == 0 {
		return nil
	}

	var overs, unders []candidate
	for assetID, target := range p.TargetRatios {
		current := decimal.Zero
		h := p.Holding(assetID)
		if h != nil {
			current = h.Value().Div(total)
		}
		deviation := current.Sub(target)
		if deviation.Abs().LessThanOrEqual(tolerance) {
			continue
		}
		c := candidate{assetID: assetID, deviation: deviation.Abs()}
		if deviation.IsPositive() {
			c.value = deviation.Mul(total)
			overs = append(overs, c)
		} else {
			if h == nil || h.UnitValue.IsZero() {
				continue
			}
			c.value = deviation.Neg().Mul(total)
			unders = append(unders, c)
		}
	}

	sortCandidates(overs)
	sortCandidates(unders)

	var moves []RebalanceMove
	i, j := 0, 0
	for i < len(overs) && j < len(unders) {
		v := decimal.Min(overs[i].value, unders[j].value)
		if v.IsPositive() {
			moves = append(moves, RebalanceMove{
				SellAsset: overs[i].assetID,
				BuyAsset:  unders[j].assetID,
				Value:     v,
			})
		}
		overs[i].value = overs[i].value.Sub(v)
		unders[j].value = unders[j].value.Sub(v)
		if overs[i].value.IsZero() {
			i++
		}
		if unders[j].value.IsZero() {
			j++
		}
	}

	return moves
}

// sortCandidates orders by descending absolute deviation, then ascending
// asset id so that plans are deterministic across runs
func sortCandidates(cs []candidate) {
	sort.Slice(cs, func(a, b int) bool {
		if !cs[a].deviation.Equal(cs[b].deviation) {
			return cs[a].deviation.GreaterThan(cs[b].deviation)
		}
		return cs[a].assetID < cs[b].assetID
	})
}

// ApplyMoves mutates the staged portfolio according to the plan. Each move
// converts its value into units on both legs at the holdings' current unit
// values, so the folded total value is unchanged.
func ApplyMoves(p *models.Portfolio, moves []RebalanceMove, now time.Time) {
	for _, m := range moves {
		sell := p.Holding(m.SellAsset)
		buy := p.Holding(m.BuyAsset)
		if sell == nil || buy == nil || sell.UnitValue.IsZero() || buy.UnitValue.IsZero() {
			continue
		}
		sell.Amount = sell.Amount.Sub(m.Value.Div(sell.UnitValue))
		sell.LastUpdatedAt = now
		buy.Amount = buy.Amount.Add(m.Value.Div(buy.UnitValue))
		buy.LastUpdatedAt = now
	}
}
