package strategy

import (
	"errors"

	"yieldlooper/src/model"
)

func init() {
	Register(&PerpBorrowingRecursive{})
}

// PerpBorrowingRecursive is PerpBorrowing with the looped amplifier applied:
// proceeds of the hedged borrow are redeposited, which telescopes to a uniform
// factor 1/(1-q) on every leg, q = r*(1-d).
type PerpBorrowingRecursive struct{}

func (c *PerpBorrowingRecursive) Archetype() model.Archetype {
	return model.ArchetypePerpBorrowingRecursive
}

func (c *PerpBorrowingRecursive) CalculatePositions(in Inputs) (model.Sizing, error) {
	if err := validatePerpBorrowQuotes(in); err != nil {
		return model.Sizing{}, err
	}
	r, err := perpBorrowRatio(in)
	if err != nil {
		return model.Sizing{}, err
	}

	q := r * (1 - in.MinLiquidationDistance)
	if q >= 1 {
		return model.Sizing{}, errors.New("amplifier does not converge")
	}
	factor := 1 / (1 - q)

	lA := factor
	bA := factor * r
	lB := bA * in.Leg2B.Price / in.Leg2A.Price
	return model.Sizing{LendA: lA, BorrowA: bA, LendB: lB}, nil
}

func (c *PerpBorrowingRecursive) CalculateGrossAPR(s model.Sizing, in Inputs) float64 {
	return s.LendA*in.Leg1A.LendAPR() -
		s.BorrowA*in.Leg2A.BorrowAPR() -
		s.LendB*in.Leg2B.BorrowAPR()
}

func (c *PerpBorrowingRecursive) CalculateNetAPR(s model.Sizing, in Inputs, basisCost float64) float64 {
	totalFee := s.BorrowA*in.Leg2A.BorrowFee + perpRoundTripFee(in.PerpTakerFee, s.LendB)
	return c.CalculateGrossAPR(s, in) - totalFee - basisCost
}

func (c *PerpBorrowingRecursive) Analyze(in Inputs) *model.StrategyResult {
	s, err := c.CalculatePositions(in)
	if err != nil {
		return invalidResult(c.Archetype(), quoteTimestamp(in), err.Error())
	}
	return analyzePerpBorrow(c, s, in)
}

func (c *PerpBorrowingRecursive) RebalanceAmounts(pos *model.Position, in Inputs) (*RebalancePlan, error) {
	if err := validatePerpBorrowQuotes(in); err != nil {
		return nil, err
	}
	return planRebalance(pos, in)
}
