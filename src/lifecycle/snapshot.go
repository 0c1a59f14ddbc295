package lifecycle

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/model"
	"yieldlooper/src/strategy"
	"yieldlooper/src/valuation"
)

// freezeLegStates copies the entry quotes into the position's per-leg
// snapshot and derives entry token amounts, sizing * deployment / price.
func freezeLegStates(pos *model.Position, quotes strategy.Inputs) error {
	s := pos.Sizing()
	specs := []struct {
		label  string
		weight float64
		quote  *model.MarketQuote
		state  *model.LegState
	}{
		{model.LegLabel1A, s.LendA, quotes.Leg1A, &pos.Leg1A},
		{model.LegLabel2A, s.BorrowA, quotes.Leg2A, &pos.Leg2A},
		{model.LegLabel2B, s.LendB, quotes.Leg2B, &pos.Leg2B},
		{model.LegLabel3B, s.BorrowB, quotes.Leg3B, &pos.Leg3B},
	}

	for _, spec := range specs {
		if spec.weight <= 0 {
			continue
		}
		if spec.quote == nil {
			return fmt.Errorf("sizing uses leg %s but no quote was provided", spec.label)
		}
		if spec.quote.Price <= 0 {
			return fmt.Errorf("entry price for leg %s must be positive", spec.label)
		}

		*spec.state = model.LegState{
			Symbol:          spec.quote.Token,
			Contract:        spec.quote.Contract,
			Venue:           spec.quote.Venue,
			LendAPR:         spec.quote.LendAPR(),
			BorrowAPR:       spec.quote.BorrowAPR(),
			Price:           spec.quote.Price,
			CollateralRatio: spec.quote.CollateralRatio,
			LiqThreshold:    spec.quote.LiqThreshold,
			BorrowFee:       spec.quote.BorrowFee,
			BorrowWeight:    spec.quote.Weight(),
			TokenAmount:     spec.weight * pos.DeploymentUSD / spec.quote.Price,
			SizeUSD:         spec.weight * pos.DeploymentUSD,
		}
	}
	return nil
}

// applyLiquidationStates recomputes the pair liquidation points from the
// position's current leg snapshot. Protocol A's point lives on leg 2A,
// protocol B's on leg 2B; a perp short with no lend leg at B carries its
// point on leg 3B.
func applyLiquidationStates(pos *model.Position) {
	if pos.SizeBorrowA > 0 {
		point := strategy.LiquidationPrice(
			pos.Leg1A.TokenAmount*pos.Leg1A.Price,
			pos.Leg2A.TokenAmount*pos.Leg2A.Price,
			pos.Leg1A.Price, pos.Leg2A.Price,
			pos.Leg1A.LiqThreshold, strategy.SideBorrowing, pos.Leg2A.BorrowWeight)
		pos.Leg2A.LiquidationPrice = point.Price
		pos.Leg2A.LiquidationDistance = point.Distance
	}

	switch {
	case pos.SizeBorrowB > 0 && pos.SizeLendB > 0:
		point := strategy.LiquidationPrice(
			pos.Leg2B.TokenAmount*pos.Leg2B.Price,
			pos.Leg3B.TokenAmount*pos.Leg3B.Price,
			pos.Leg2B.Price, pos.Leg3B.Price,
			pos.Leg2B.LiqThreshold, strategy.SideLending, pos.Leg3B.BorrowWeight)
		pos.Leg2B.LiquidationPrice = point.Price
		pos.Leg2B.LiquidationDistance = point.Distance
	case pos.SizeBorrowB > 0:
		// Perp short backed by the whole deployment.
		point := strategy.LiquidationPrice(
			pos.DeploymentUSD,
			pos.Leg3B.TokenAmount*pos.Leg3B.Price,
			pos.Leg1A.Price, pos.Leg3B.Price,
			pos.Leg3B.LiqThreshold, strategy.SideBorrowing, pos.Leg3B.BorrowWeight)
		pos.Leg3B.LiquidationPrice = point.Price
		pos.Leg3B.LiquidationDistance = point.Distance
	}
}

func ledgerLeg(state model.LegState) model.RebalanceLeg {
	return model.RebalanceLeg{
		LendAPR:             state.LendAPR,
		BorrowAPR:           state.BorrowAPR,
		Price:               state.Price,
		LiquidationPrice:    state.LiquidationPrice,
		LiquidationDistance: state.LiquidationDistance,
		TokenAmount:         state.TokenAmount,
		SizeUSD:             state.SizeUSD,
	}
}

// segmentSnapshot is everything captured when a segment ends: the valuation
// over the segment, the drifted closing state and the corrected state the
// next segment (if any) opens with.
type segmentSnapshot struct {
	result *valuation.Result

	// closing carries exit token amounts as they drifted; next carries the
	// amounts corrected back to sizing at closing prices.
	closing1A, closing2A, closing2B, closing3B model.RebalanceLeg
	next1A, next2A, next2B, next3B             model.RebalanceLeg

	states struct {
		leg1A, leg2A, leg2B, leg3B model.LegState
	}
}

// captureSegment values the open segment ending at ts and resolves the
// closing market state per leg. A leg with no fresh market data keeps its
// frozen snapshot values, logged, never fatal.
func (e *Engine) captureSegment(ctx context.Context, pos *model.Position, ts int64) (*segmentSnapshot, error) {
	result, err := e.valuer.CalculatePositionValue(ctx, pos, pos.LastSegmentOpenedAt, ts)
	if err != nil {
		return nil, err
	}

	snap := &segmentSnapshot{result: result}
	snap.states.leg1A = pos.Leg1A
	snap.states.leg2A = pos.Leg2A
	snap.states.leg2B = pos.Leg2B
	snap.states.leg3B = pos.Leg3B

	s := pos.Sizing()
	legs := []struct {
		label  string
		weight float64
		state  *model.LegState
	}{
		{model.LegLabel1A, s.LendA, &snap.states.leg1A},
		{model.LegLabel2A, s.BorrowA, &snap.states.leg2A},
		{model.LegLabel2B, s.LendB, &snap.states.leg2B},
		{model.LegLabel3B, s.BorrowB, &snap.states.leg3B},
	}
	for _, leg := range legs {
		if leg.weight <= 0 {
			continue
		}
		rate, err := e.rates.LatestRateBefore(ctx, valuation.RateKey{Token: leg.state.Symbol, Venue: leg.state.Venue}, ts)
		if err != nil {
			return nil, err
		}
		if rate == nil {
			e.log.WithFields(logger.Fields{
				"uid":       pos.UID,
				"leg":       leg.label,
				"timestamp": ts,
			}).Warn("No market data at segment close, keeping frozen snapshot values")
			continue
		}
		leg.state.LendAPR = rate.LendAPRBase + rate.LendAPRReward
		leg.state.BorrowAPR = rate.BorrowAPRBase + rate.BorrowAPRReward
		if rate.Price > 0 {
			leg.state.Price = rate.Price
		}
		if rate.CollateralRatio > 0 {
			leg.state.CollateralRatio = rate.CollateralRatio
		}
		if rate.LiqThreshold > 0 {
			leg.state.LiqThreshold = rate.LiqThreshold
		}
		leg.state.BorrowFee = rate.BorrowFee
		if rate.BorrowWeight > 0 {
			leg.state.BorrowWeight = rate.BorrowWeight
		}
	}

	// Exit (drifted) USD sizes at closing prices.
	for _, leg := range legs {
		if leg.weight <= 0 {
			continue
		}
		leg.state.SizeUSD = leg.state.TokenAmount * leg.state.Price
	}
	snap.refreshLiquidation(pos)

	snap.closing1A = ledgerLeg(snap.states.leg1A)
	snap.closing2A = ledgerLeg(snap.states.leg2A)
	snap.closing2B = ledgerLeg(snap.states.leg2B)
	snap.closing3B = ledgerLeg(snap.states.leg3B)

	// Correct amounts back to the frozen sizing at closing prices for the
	// next segment's opening.
	snap.next1A = correctedLeg(snap.states.leg1A, s.LendA, pos.DeploymentUSD)
	snap.next2A = correctedLeg(snap.states.leg2A, s.BorrowA, pos.DeploymentUSD)
	snap.next2B = correctedLeg(snap.states.leg2B, s.LendB, pos.DeploymentUSD)
	snap.next3B = correctedLeg(snap.states.leg3B, s.BorrowB, pos.DeploymentUSD)

	return snap, nil
}

// refreshLiquidation recomputes pair liquidation points on the drifted
// closing state.
func (s *segmentSnapshot) refreshLiquidation(pos *model.Position) {
	scratch := *pos
	scratch.Leg1A = s.states.leg1A
	scratch.Leg2A = s.states.leg2A
	scratch.Leg2B = s.states.leg2B
	scratch.Leg3B = s.states.leg3B
	applyLiquidationStates(&scratch)
	s.states.leg1A = scratch.Leg1A
	s.states.leg2A = scratch.Leg2A
	s.states.leg2B = scratch.Leg2B
	s.states.leg3B = scratch.Leg3B
}

func correctedLeg(state model.LegState, weight, deploymentUSD float64) model.RebalanceLeg {
	leg := model.RebalanceLeg{
		LendAPR:             state.LendAPR,
		BorrowAPR:           state.BorrowAPR,
		Price:               state.Price,
		LiquidationPrice:    state.LiquidationPrice,
		LiquidationDistance: state.LiquidationDistance,
	}
	if weight > 0 && state.Price > 0 {
		leg.TokenAmount = weight * deploymentUSD / state.Price
		leg.SizeUSD = weight * deploymentUSD
	}
	return leg
}

// finalizeRow fills the closing half of the open ledger row.
func (s *segmentSnapshot) finalizeRow(row *model.PositionRebalance, ts int64, reason string) {
	row.ClosingTimestamp = &ts
	if reason != "" {
		row.Reason = reason
	}
	row.Closing1A = s.closing1A
	row.Closing2A = s.closing2A
	row.Closing2B = s.closing2B
	row.Closing3B = s.closing3B
	row.RealizedEarnings = s.result.LendEarnings
	row.RealizedCosts = s.result.BorrowCosts
	row.RealizedFees = s.result.Fees
	row.RealizedPnl = s.result.NetEarnings
}

// rollForward moves the position's snapshot fields to the closing market
// state with corrected token amounts and accumulates the segment's realized
// pnl. Sizing fields are untouched.
func (s *segmentSnapshot) rollForward(pos *model.Position, ts int64) {
	sz := pos.Sizing()
	pos.Leg1A = s.states.leg1A
	pos.Leg2A = s.states.leg2A
	pos.Leg2B = s.states.leg2B
	pos.Leg3B = s.states.leg3B

	apply := func(state *model.LegState, weight float64) {
		if weight > 0 && state.Price > 0 {
			state.TokenAmount = weight * pos.DeploymentUSD / state.Price
			state.SizeUSD = weight * pos.DeploymentUSD
		}
	}
	apply(&pos.Leg1A, sz.LendA)
	apply(&pos.Leg2A, sz.BorrowA)
	apply(&pos.Leg2B, sz.LendB)
	apply(&pos.Leg3B, sz.BorrowB)
	applyLiquidationStates(pos)

	pos.LastSegmentOpenedAt = ts
	pos.AccumulatedRealizedPnl += s.result.NetEarnings
}
