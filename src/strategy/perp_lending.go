package strategy

import (
	"errors"

	"yieldlooper/src/model"
)

func init() {
	Register(&PerpLending{})
}

// PerpLending lends a volatile token (leg 1A) and shorts the same token on a
// perp venue (leg 3B). The short is matched by token count, not USD, so the
// book stays delta-neutral even when the perp trades away from spot.
type PerpLending struct{}

func (c *PerpLending) Archetype() model.Archetype {
	return model.ArchetypePerpLending
}

func (c *PerpLending) CalculatePositions(in Inputs) (model.Sizing, error) {
	if in.Leg1A == nil || in.Leg3B == nil {
		return model.Sizing{}, errors.New("missing lending or perp quote")
	}
	if in.Leg1A.Price <= 0 || in.Leg3B.Price <= 0 {
		return model.Sizing{}, errors.New("quote prices must be positive")
	}
	if in.MinLiquidationDistance < 0 {
		return model.Sizing{}, errors.New("liquidation distance must not be negative")
	}

	lA := 1 / (1 + in.MinLiquidationDistance)
	// Token-count matching: the short notional in USD is the lent token
	// count priced at the perp.
	bB := lA * in.Leg3B.Price / in.Leg1A.Price
	return model.Sizing{LendA: lA, BorrowB: bB}, nil
}

func (c *PerpLending) CalculateGrossAPR(s model.Sizing, in Inputs) float64 {
	// The perp quote's lend APR carries the funding received on shorts.
	return s.LendA*in.Leg1A.LendAPR() + s.BorrowB*in.Leg3B.LendAPR()
}

func (c *PerpLending) CalculateNetAPR(s model.Sizing, in Inputs, basisCost float64) float64 {
	return c.CalculateGrossAPR(s, in) - perpRoundTripFee(in.PerpTakerFee, s.BorrowB) - basisCost
}

func (c *PerpLending) Analyze(in Inputs) *model.StrategyResult {
	s, err := c.CalculatePositions(in)
	if err != nil {
		return invalidResult(c.Archetype(), quoteTimestamp(in), err.Error())
	}

	gross := c.CalculateGrossAPR(s, in)
	totalFee := perpRoundTripFee(in.PerpTakerFee, s.BorrowB)
	basisCost, omitted := basisCostFor(in, s.BorrowB)

	// The whole deployment backs the short, lent tokens included.
	point := LiquidationPrice(1.0, s.BorrowB, in.Leg1A.Price, in.Leg3B.Price,
		in.Leg3B.LiqThreshold, SideBorrowing, in.Leg3B.Weight())
	if point.Liquidated {
		return invalidResult(c.Archetype(), quoteTimestamp(in), "perp margin starts past the liquidation threshold")
	}

	return buildResult(c.Archetype(), in, s, gross, totalFee, basisCost, omitted, point.Distance)
}

func (c *PerpLending) RebalanceAmounts(pos *model.Position, in Inputs) (*RebalancePlan, error) {
	if in.Leg1A == nil || in.Leg3B == nil {
		return nil, errors.New("missing live lending or perp quote")
	}
	return planRebalance(pos, in)
}

// basisCostFor prices the spot/perp spread against the perp notional. Missing
// basis data is tolerated: the cost defaults to zero and the result carries an
// omitted flag instead of an error.
func basisCostFor(in Inputs, perpNotional float64) (cost float64, omitted bool) {
	if in.Basis == nil {
		return 0, true
	}
	return perpNotional * in.Basis.Spread, false
}
