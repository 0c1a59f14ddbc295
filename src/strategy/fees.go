package strategy

import "math"

const daysPerYear = 365.0

// amortize spreads a one-time fee over holding horizons. The N-day APR is
// (gross*N/365 - fee) * 365/N, so net at 365 days is exactly gross - fee.
// Breakeven is 0 with no fee, +Inf when the strategy never earns it back.
func amortize(grossAPR, totalFee float64) (net, apr5, apr30, apr90, breakevenDays float64) {
	net = grossAPR - totalFee
	apr5 = aprOverDays(grossAPR, totalFee, 5)
	apr30 = aprOverDays(grossAPR, totalFee, 30)
	apr90 = aprOverDays(grossAPR, totalFee, 90)

	switch {
	case grossAPR > 0:
		breakevenDays = totalFee * daysPerYear / grossAPR
	case totalFee == 0:
		breakevenDays = 0
	default:
		breakevenDays = math.Inf(1)
	}
	return net, apr5, apr30, apr90, breakevenDays
}

func aprOverDays(grossAPR, totalFee, days float64) float64 {
	return (grossAPR*days/daysPerYear - totalFee) * daysPerYear / days
}

// perpRoundTripFee charges the taker fee twice, entry and exit, on the perp
// notional.
func perpRoundTripFee(takerFee, perpNotional float64) float64 {
	return 2 * takerFee * perpNotional
}
