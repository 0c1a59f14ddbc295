package model

// MarketQuote is the ephemeral per (token, venue) market view handed to the
// strategy calculators. It is never persisted and never mutated by the core.
type MarketQuote struct {
	Token     string `json:"token"`
	Venue     string `json:"venue"`
	Contract  string `json:"contract,omitempty"`
	Timestamp int64  `json:"timestamp"`

	LendAPRBase     float64 `json:"lend_apr_base"`
	LendAPRReward   float64 `json:"lend_apr_reward"`
	BorrowAPRBase   float64 `json:"borrow_apr_base"`
	BorrowAPRReward float64 `json:"borrow_apr_reward"`

	Price              float64 `json:"price"`
	CollateralRatio    float64 `json:"collateral_ratio"`
	LiqThreshold       float64 `json:"liq_threshold"`
	BorrowFee          float64 `json:"borrow_fee"`
	BorrowWeight       float64 `json:"borrow_weight"`
	AvailableLiquidity float64 `json:"available_liquidity"`
}

// LendAPR returns the combined base plus reward lending rate.
func (q *MarketQuote) LendAPR() float64 {
	return q.LendAPRBase + q.LendAPRReward
}

// BorrowAPR returns the combined base plus reward borrowing rate.
func (q *MarketQuote) BorrowAPR() float64 {
	return q.BorrowAPRBase + q.BorrowAPRReward
}

// Weight returns the borrow weight, defaulting to 1 when the venue does not
// report one.
func (q *MarketQuote) Weight() float64 {
	if q.BorrowWeight <= 0 {
		return 1
	}
	return q.BorrowWeight
}
