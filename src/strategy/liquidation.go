package strategy

import "math"

// Side names which leg of a lending/borrowing pair is the volatile one, i.e.
// which price the liquidation point is expressed in.
type Side string

const (
	SideLending   Side = "lending"
	SideBorrowing Side = "borrowing"
)

const (
	DirectionDown = "down"
	DirectionUp   = "up"
)

// LiquidationPoint is the output of the token-agnostic liquidation model.
// Distance is (liq_price - current_price) / current_price: negative for a
// lending-side pair (price must fall), positive for a borrowing-side pair
// (price must rise).
type LiquidationPoint struct {
	Price      float64 `json:"price"`
	Distance   float64 `json:"distance"`
	Direction  string  `json:"direction,omitempty"`
	Impossible bool    `json:"impossible,omitempty"`
	Liquidated bool    `json:"liquidated,omitempty"`
}

// LiquidationPrice computes the token price at which a collateral/loan pair is
// liquidated. Pure and deterministic; no I/O.
//
// collateralUSD and loanUSD are current USD values, lltv the liquidation
// threshold, borrowWeight the venue's risk weight on the loan (1 when the
// venue has none). With no loan or no collateral liquidation is impossible;
// with current LTV at or past the threshold the pair is already liquidated.
func LiquidationPrice(collateralUSD, loanUSD, lendingPrice, borrowingPrice, lltv float64, side Side, borrowWeight float64) LiquidationPoint {
	if collateralUSD <= 0 || loanUSD <= 0 {
		return LiquidationPoint{
			Price:      math.Inf(1),
			Distance:   math.Inf(1),
			Impossible: true,
		}
	}

	if borrowWeight <= 0 {
		borrowWeight = 1
	}
	currentLTV := loanUSD * borrowWeight / collateralUSD

	if lltv <= 0 || currentLTV >= lltv {
		return LiquidationPoint{
			Price:      0,
			Distance:   -1,
			Liquidated: true,
		}
	}

	switch side {
	case SideBorrowing:
		liqPrice := borrowingPrice * (lltv / currentLTV)
		return LiquidationPoint{
			Price:     liqPrice,
			Distance:  (liqPrice - borrowingPrice) / borrowingPrice,
			Direction: DirectionUp,
		}
	default:
		liqPrice := lendingPrice * (currentLTV / lltv)
		return LiquidationPoint{
			Price:     liqPrice,
			Distance:  (liqPrice - lendingPrice) / lendingPrice,
			Direction: DirectionDown,
		}
	}
}
