package strategy

import (
	"errors"

	"yieldlooper/src/model"
)

func init() {
	Register(&PerpBorrowing{})
}

// PerpBorrowing lends stable at protocol A (leg 1A), borrows the volatile
// token against it (leg 2A) and hedges the borrow with a token-count-matched
// perp long (leg 2B slot).
type PerpBorrowing struct{}

func (c *PerpBorrowing) Archetype() model.Archetype {
	return model.ArchetypePerpBorrowing
}

// borrowRatio is shared with the recursive variant.
func perpBorrowRatio(in Inputs) (float64, error) {
	if in.Leg1A.LiqThreshold <= 0 {
		return 0, errors.New("leg 1A liquidation threshold must be positive")
	}
	if in.MinLiquidationDistance < 0 {
		return 0, errors.New("liquidation distance must not be negative")
	}
	r := (in.Leg1A.LiqThreshold / in.Leg2A.Weight()) / (1 + in.MinLiquidationDistance)
	if cap := in.Leg1A.CollateralRatio; cap > 0 && r > cap {
		r = cap
	}
	if r <= 0 || r >= 1 {
		return 0, errors.New("borrow ratio out of range")
	}
	return r, nil
}

func validatePerpBorrowQuotes(in Inputs) error {
	if in.Leg1A == nil || in.Leg2A == nil || in.Leg2B == nil {
		return errors.New("missing quote for leg 1A, 2A or the perp hedge")
	}
	if in.Leg1A.Price <= 0 || in.Leg2A.Price <= 0 || in.Leg2B.Price <= 0 {
		return errors.New("quote prices must be positive")
	}
	return nil
}

func (c *PerpBorrowing) CalculatePositions(in Inputs) (model.Sizing, error) {
	if err := validatePerpBorrowQuotes(in); err != nil {
		return model.Sizing{}, err
	}
	r, err := perpBorrowRatio(in)
	if err != nil {
		return model.Sizing{}, err
	}

	lA := 1.0
	bA := lA * r
	// Hedge matched by token count against the borrowed leg.
	lB := bA * in.Leg2B.Price / in.Leg2A.Price
	return model.Sizing{LendA: lA, BorrowA: bA, LendB: lB}, nil
}

func (c *PerpBorrowing) CalculateGrossAPR(s model.Sizing, in Inputs) float64 {
	// The perp quote's borrow APR carries the funding paid on longs.
	return s.LendA*in.Leg1A.LendAPR() -
		s.BorrowA*in.Leg2A.BorrowAPR() -
		s.LendB*in.Leg2B.BorrowAPR()
}

func (c *PerpBorrowing) CalculateNetAPR(s model.Sizing, in Inputs, basisCost float64) float64 {
	totalFee := s.BorrowA*in.Leg2A.BorrowFee + perpRoundTripFee(in.PerpTakerFee, s.LendB)
	return c.CalculateGrossAPR(s, in) - totalFee - basisCost
}

func (c *PerpBorrowing) Analyze(in Inputs) *model.StrategyResult {
	s, err := c.CalculatePositions(in)
	if err != nil {
		return invalidResult(c.Archetype(), quoteTimestamp(in), err.Error())
	}
	return analyzePerpBorrow(c, s, in)
}

func analyzePerpBorrow(c Calculator, s model.Sizing, in Inputs) *model.StrategyResult {
	gross := c.CalculateGrossAPR(s, in)
	totalFee := s.BorrowA*in.Leg2A.BorrowFee + perpRoundTripFee(in.PerpTakerFee, s.LendB)
	basisCost, omitted := basisCostFor(in, s.LendB)

	point := LiquidationPrice(s.LendA, s.BorrowA, in.Leg1A.Price, in.Leg2A.Price,
		in.Leg1A.LiqThreshold, SideBorrowing, in.Leg2A.Weight())
	if point.Liquidated {
		return invalidResult(c.Archetype(), quoteTimestamp(in), "sizing starts past the liquidation threshold")
	}

	return buildResult(c.Archetype(), in, s, gross, totalFee, basisCost, omitted, point.Distance)
}

func (c *PerpBorrowing) RebalanceAmounts(pos *model.Position, in Inputs) (*RebalancePlan, error) {
	if err := validatePerpBorrowQuotes(in); err != nil {
		return nil, err
	}
	return planRebalance(pos, in)
}
