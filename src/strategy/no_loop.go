package strategy

import (
	"errors"
	"fmt"

	"yieldlooper/src/model"
)

func init() {
	Register(&NoLoop{})
}

// NoLoop is the single-pass cross-protocol strategy: lend at protocol A,
// borrow the volatile token against it once, lend the borrowed token at
// protocol B. No reinvestment.
type NoLoop struct{}

func (c *NoLoop) Archetype() model.Archetype {
	return model.ArchetypeNoLoop
}

func (c *NoLoop) CalculatePositions(in Inputs) (model.Sizing, error) {
	if in.Leg1A == nil || in.Leg2A == nil || in.Leg2B == nil {
		return model.Sizing{}, errors.New("missing quote for leg 1A, 2A or 2B")
	}
	if in.Leg1A.Price <= 0 || in.Leg2A.Price <= 0 || in.Leg2B.Price <= 0 {
		return model.Sizing{}, errors.New("quote prices must be positive")
	}
	if in.Leg1A.LiqThreshold <= 0 {
		return model.Sizing{}, errors.New("leg 1A liquidation threshold must be positive")
	}
	if in.MinLiquidationDistance < 0 {
		return model.Sizing{}, errors.New("liquidation distance must not be negative")
	}

	rA := in.Leg1A.LiqThreshold / (1 + in.MinLiquidationDistance)
	if cap := in.Leg1A.CollateralRatio; cap > 0 && rA > cap {
		rA = cap
	}

	lA := 1.0
	bA := lA * rA
	return model.Sizing{LendA: lA, BorrowA: bA, LendB: bA}, nil
}

func (c *NoLoop) CalculateGrossAPR(s model.Sizing, in Inputs) float64 {
	return s.LendA*in.Leg1A.LendAPR() -
		s.BorrowA*in.Leg2A.BorrowAPR() +
		s.LendB*in.Leg2B.LendAPR()
}

func (c *NoLoop) CalculateNetAPR(s model.Sizing, in Inputs, basisCost float64) float64 {
	return c.CalculateGrossAPR(s, in) - s.BorrowA*in.Leg2A.BorrowFee - basisCost
}

func (c *NoLoop) Analyze(in Inputs) *model.StrategyResult {
	s, err := c.CalculatePositions(in)
	if err != nil {
		return invalidResult(c.Archetype(), quoteTimestamp(in), err.Error())
	}

	gross := c.CalculateGrossAPR(s, in)
	totalFee := s.BorrowA * in.Leg2A.BorrowFee

	// Borrowed volatile tokens against stable collateral: the position is
	// liquidated when the borrowed token's price rises far enough.
	point := LiquidationPrice(s.LendA, s.BorrowA, in.Leg1A.Price, in.Leg2A.Price,
		in.Leg1A.LiqThreshold, SideBorrowing, in.Leg2A.Weight())
	if point.Liquidated {
		return invalidResult(c.Archetype(), quoteTimestamp(in),
			fmt.Sprintf("sizing starts past the liquidation threshold (lltv=%.4f)", in.Leg1A.LiqThreshold))
	}

	return buildResult(c.Archetype(), in, s, gross, totalFee, 0, false, point.Distance)
}

func (c *NoLoop) RebalanceAmounts(pos *model.Position, in Inputs) (*RebalancePlan, error) {
	if in.Leg1A == nil || in.Leg2A == nil || in.Leg2B == nil {
		return nil, errors.New("missing live quote for leg 1A, 2A or 2B")
	}
	return planRebalance(pos, in)
}
