package strategy

import (
	"errors"
	"math"

	"yieldlooper/src/model"
)

func init() {
	Register(&StableLending{})
}

// StableLending is the one-leg baseline: lend a stablecoin, nothing borrowed,
// no liquidation exposure.
type StableLending struct{}

func (c *StableLending) Archetype() model.Archetype {
	return model.ArchetypeStableLending
}

func (c *StableLending) CalculatePositions(in Inputs) (model.Sizing, error) {
	if in.Leg1A == nil {
		return model.Sizing{}, errors.New("missing lending quote for leg 1A")
	}
	if in.Leg1A.Price <= 0 {
		return model.Sizing{}, errors.New("leg 1A price must be positive")
	}
	return model.Sizing{LendA: 1.0}, nil
}

func (c *StableLending) CalculateGrossAPR(s model.Sizing, in Inputs) float64 {
	return s.LendA * in.Leg1A.LendAPR()
}

func (c *StableLending) CalculateNetAPR(s model.Sizing, in Inputs, basisCost float64) float64 {
	return c.CalculateGrossAPR(s, in) - basisCost
}

func (c *StableLending) Analyze(in Inputs) *model.StrategyResult {
	s, err := c.CalculatePositions(in)
	if err != nil {
		return invalidResult(c.Archetype(), quoteTimestamp(in), err.Error())
	}

	gross := c.CalculateGrossAPR(s, in)
	return buildResult(c.Archetype(), in, s, gross, 0, 0, false, math.Inf(1))
}

func (c *StableLending) RebalanceAmounts(pos *model.Position, in Inputs) (*RebalancePlan, error) {
	if in.Leg1A == nil || in.Leg1A.Price <= 0 {
		return nil, errors.New("missing live price for leg 1A")
	}
	return planRebalance(pos, in)
}
