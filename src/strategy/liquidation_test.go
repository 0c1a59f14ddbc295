package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiquidationPriceImpossible(t *testing.T) {
	tests := []struct {
		name       string
		collateral float64
		loan       float64
	}{
		{"no collateral", 0, 500},
		{"negative collateral", -10, 500},
		{"no loan", 1000, 0},
		{"negative loan", 1000, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point := LiquidationPrice(tt.collateral, tt.loan, 1.0, 2000, 0.8, SideLending, 1)
			assert.True(t, point.Impossible)
			assert.True(t, math.IsInf(point.Price, 1))
			assert.True(t, math.IsInf(point.Distance, 1))
		})
	}
}

func TestLiquidationPriceAlreadyLiquidated(t *testing.T) {
	// current LTV at or past the threshold must report liquidated on either
	// side, including via borrow weight inflation.
	tests := []struct {
		name       string
		collateral float64
		loan       float64
		lltv       float64
		side       Side
		weight     float64
	}{
		{"ltv equals lltv, lending side", 1000, 800, 0.8, SideLending, 1},
		{"ltv equals lltv, borrowing side", 1000, 800, 0.8, SideBorrowing, 1},
		{"ltv past lltv", 1000, 900, 0.8, SideLending, 1},
		{"weight pushes ltv past lltv", 1000, 700, 0.8, SideBorrowing, 1.2},
		{"non-positive lltv", 1000, 100, 0, SideLending, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point := LiquidationPrice(tt.collateral, tt.loan, 1.0, 2000, tt.lltv, tt.side, tt.weight)
			assert.True(t, point.Liquidated)
			assert.Equal(t, 0.0, point.Price)
			assert.Equal(t, -1.0, point.Distance)
		})
	}
}

func TestLiquidationPriceLendingSide(t *testing.T) {
	// Collateral worth 1000 at price 2.0, loan 400, lltv 0.8:
	// currentLTV = 0.4, liq at 2.0 * 0.4/0.8 = 1.0, a 50% drop.
	point := LiquidationPrice(1000, 400, 2.0, 1.0, 0.8, SideLending, 1)
	assert.False(t, point.Impossible)
	assert.False(t, point.Liquidated)
	assert.InDelta(t, 1.0, point.Price, 1e-12)
	assert.InDelta(t, -0.5, point.Distance, 1e-12)
	assert.Equal(t, DirectionDown, point.Direction)
}

func TestLiquidationPriceBorrowingSide(t *testing.T) {
	// Loan 400 at price 100, lltv 0.8 against 1000 collateral:
	// currentLTV = 0.4, liq at 100 * 0.8/0.4 = 200, a 100% rise.
	point := LiquidationPrice(1000, 400, 1.0, 100, 0.8, SideBorrowing, 1)
	assert.InDelta(t, 200.0, point.Price, 1e-12)
	assert.InDelta(t, 1.0, point.Distance, 1e-12)
	assert.Equal(t, DirectionUp, point.Direction)
}

func TestLiquidationPriceBorrowWeight(t *testing.T) {
	// Weight 2 doubles the effective LTV and halves the distance to the
	// threshold.
	weighted := LiquidationPrice(1000, 200, 1.0, 100, 0.8, SideBorrowing, 2)
	unweighted := LiquidationPrice(1000, 400, 1.0, 100, 0.8, SideBorrowing, 1)
	assert.InDelta(t, unweighted.Price, weighted.Price, 1e-12)
}
