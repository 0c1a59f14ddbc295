package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"yieldlooper/src/model"
)

// LegAdjustment is one leg's correction back to the frozen sizing: how many
// tokens to add (positive) or shed (negative), and the same delta in USD at
// the live price.
type LegAdjustment struct {
	Label         string          `json:"label"`
	CurrentTokens float64         `json:"current_tokens"`
	TargetTokens  float64         `json:"target_tokens"`
	DeltaTokens   float64         `json:"delta_tokens"`
	DeltaUSD      decimal.Decimal `json:"delta_usd"`
	LivePrice     float64         `json:"live_price"`
}

// RebalancePlan is the full set of corrections for one position. Sizing never
// changes; only token amounts are moved back to sizing * deployment at live
// prices.
type RebalancePlan struct {
	PositionUID string          `json:"position_uid"`
	Legs        []LegAdjustment `json:"legs"`
}

func planRebalance(pos *model.Position, in Inputs) (*RebalancePlan, error) {
	s := pos.Sizing()
	plan := &RebalancePlan{PositionUID: pos.UID}

	type legSpec struct {
		label  string
		weight float64
		state  model.LegState
		quote  *model.MarketQuote
	}
	specs := []legSpec{
		{model.LegLabel1A, s.LendA, pos.Leg1A, in.Leg1A},
		{model.LegLabel2A, s.BorrowA, pos.Leg2A, in.Leg2A},
		{model.LegLabel2B, s.LendB, pos.Leg2B, in.Leg2B},
		{model.LegLabel3B, s.BorrowB, pos.Leg3B, in.Leg3B},
	}

	for _, spec := range specs {
		if spec.weight <= 0 {
			continue
		}
		if spec.quote == nil || spec.quote.Price <= 0 {
			return nil, fmt.Errorf("no live price for leg %s", spec.label)
		}

		target := spec.weight * pos.DeploymentUSD / spec.quote.Price
		delta := target - spec.state.TokenAmount
		deltaUSD := decimal.NewFromFloat(delta).Mul(decimal.NewFromFloat(spec.quote.Price))

		plan.Legs = append(plan.Legs, LegAdjustment{
			Label:         spec.label,
			CurrentTokens: spec.state.TokenAmount,
			TargetTokens:  target,
			DeltaTokens:   delta,
			DeltaUSD:      deltaUSD,
			LivePrice:     spec.quote.Price,
		})
	}
	return plan, nil
}
