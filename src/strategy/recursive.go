package strategy

import (
	"errors"
	"fmt"
	"math"

	"yieldlooper/src/model"
)

func init() {
	Register(&RecursiveLending{})
}

// RecursiveLending is the four-leg looped strategy: lend stable at protocol A,
// borrow volatile, lend the volatile token at protocol B, borrow stable there
// and reinvest at A — repeated to the limit. The infinite reinvestment is a
// geometric series, so sizing telescopes to the closed form
// l_a = 1/(1 - r_A*r_B) with per-protocol reinvestment ratios r.
type RecursiveLending struct{}

func (c *RecursiveLending) Archetype() model.Archetype {
	return model.ArchetypeRecursiveLending
}

// ratios derives r_A and r_B from the quotes, applying at most one collateral
// cap clamp per protocol. A second clamp being needed is an error, never a
// silent loop.
func (c *RecursiveLending) ratios(in Inputs) (rA, rB float64, err error) {
	d := in.MinLiquidationDistance
	if d <= 0 || d >= 1 {
		return 0, 0, errors.New("minimum protection must be in (0, 1)")
	}
	liqDist := d / (1 - d)

	wA := in.Leg2A.Weight()
	wB := in.Leg3B.Weight()
	rA = (in.Leg1A.LiqThreshold / wA) / (1 + liqDist)
	rB = (in.Leg2B.LiqThreshold / wB) / (1 + liqDist)
	if rA <= 0 || rB <= 0 {
		return 0, 0, errors.New("liquidation thresholds must be positive")
	}

	// Effective LTV b/l*weight equals r*weight. When it exceeds the raw
	// collateral-factor cap, clamp r once and recompute the closed form.
	if cap := in.Leg1A.CollateralRatio; cap > 0 && rA*wA > cap {
		rA = 0.995 * cap
		if rA*wA > cap {
			return 0, 0, fmt.Errorf("protocol A collateral cap %.4f not satisfiable in one clamp (weight %.2f)", cap, wA)
		}
	}
	if cap := in.Leg2B.CollateralRatio; cap > 0 && rB*wB > cap {
		rB = 0.995 * cap
		if rB*wB > cap {
			return 0, 0, fmt.Errorf("protocol B collateral cap %.4f not satisfiable in one clamp (weight %.2f)", cap, wB)
		}
	}

	if rA >= 1 || rB >= 1 {
		return 0, 0, errors.New("reinvestment ratio must stay below 1 for the series to converge")
	}
	return rA, rB, nil
}

func (c *RecursiveLending) CalculatePositions(in Inputs) (model.Sizing, error) {
	if in.Leg1A == nil || in.Leg2A == nil || in.Leg2B == nil || in.Leg3B == nil {
		return model.Sizing{}, errors.New("recursive lending needs quotes for all four legs")
	}
	for _, q := range []*model.MarketQuote{in.Leg1A, in.Leg2A, in.Leg2B, in.Leg3B} {
		if q.Price <= 0 {
			return model.Sizing{}, fmt.Errorf("price for %s@%s must be positive", q.Token, q.Venue)
		}
	}

	rA, rB, err := c.ratios(in)
	if err != nil {
		return model.Sizing{}, err
	}

	lA := 1 / (1 - rA*rB)
	bA := lA * rA
	lB := bA
	bB := lB * rB
	return model.Sizing{LendA: lA, BorrowA: bA, LendB: lB, BorrowB: bB}, nil
}

func (c *RecursiveLending) CalculateGrossAPR(s model.Sizing, in Inputs) float64 {
	return s.LendA*in.Leg1A.LendAPR() -
		s.BorrowA*in.Leg2A.BorrowAPR() +
		s.LendB*in.Leg2B.LendAPR() -
		s.BorrowB*in.Leg3B.BorrowAPR()
}

func (c *RecursiveLending) CalculateNetAPR(s model.Sizing, in Inputs, basisCost float64) float64 {
	totalFee := s.BorrowA*in.Leg2A.BorrowFee + s.BorrowB*in.Leg3B.BorrowFee
	return c.CalculateGrossAPR(s, in) - totalFee - basisCost
}

func (c *RecursiveLending) Analyze(in Inputs) *model.StrategyResult {
	s, err := c.CalculatePositions(in)
	if err != nil {
		return invalidResult(c.Archetype(), quoteTimestamp(in), err.Error())
	}

	gross := c.CalculateGrossAPR(s, in)
	totalFee := s.BorrowA*in.Leg2A.BorrowFee + s.BorrowB*in.Leg3B.BorrowFee

	// Both protocols can liquidate; the reported distance is the nearer one.
	pointA := LiquidationPrice(s.LendA, s.BorrowA, in.Leg1A.Price, in.Leg2A.Price,
		in.Leg1A.LiqThreshold, SideBorrowing, in.Leg2A.Weight())
	pointB := LiquidationPrice(s.LendB, s.BorrowB, in.Leg2B.Price, in.Leg3B.Price,
		in.Leg2B.LiqThreshold, SideLending, in.Leg3B.Weight())
	if pointA.Liquidated || pointB.Liquidated {
		return invalidResult(c.Archetype(), quoteTimestamp(in), "sizing starts past a liquidation threshold")
	}
	distance := math.Min(math.Abs(pointA.Distance), math.Abs(pointB.Distance))

	return buildResult(c.Archetype(), in, s, gross, totalFee, 0, false, distance)
}

func (c *RecursiveLending) RebalanceAmounts(pos *model.Position, in Inputs) (*RebalancePlan, error) {
	if in.Leg1A == nil || in.Leg2A == nil || in.Leg2B == nil || in.Leg3B == nil {
		return nil, errors.New("missing live quote for a leg")
	}
	return planRebalance(pos, in)
}
