package model

import "time"

// MarketRate is one observed market snapshot for a (token, venue) pair.
// Timestamps are Unix seconds; APRs are decimals (0.05 = 5%).
// Rows are written by the ingestion commands and never mutated by the core.
type MarketRate struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Token     string `gorm:"type:varchar(50);not null;uniqueIndex:ux_market_rates_token_venue_ts,priority:1;index:idx_market_rates_token_venue,priority:1" json:"token"`
	Venue     string `gorm:"type:varchar(50);not null;uniqueIndex:ux_market_rates_token_venue_ts,priority:2;index:idx_market_rates_token_venue,priority:2" json:"venue"`
	Timestamp int64  `gorm:"not null;uniqueIndex:ux_market_rates_token_venue_ts,priority:3;index:idx_market_rates_timestamp" json:"timestamp"`

	LendAPRBase     float64 `json:"lend_apr_base"`
	LendAPRReward   float64 `json:"lend_apr_reward"`
	BorrowAPRBase   float64 `json:"borrow_apr_base"`
	BorrowAPRReward float64 `json:"borrow_apr_reward"`

	Price              float64 `json:"price"`
	CollateralRatio    float64 `json:"collateral_ratio"`
	LiqThreshold       float64 `json:"liq_threshold"`
	BorrowFee          float64 `json:"borrow_fee"`
	BorrowWeight       float64 `gorm:"default:1" json:"borrow_weight"`
	AvailableLiquidity float64 `json:"available_liquidity"`

	CreatedAt time.Time `json:"created_at"`
}

func (MarketRate) TableName() string {
	return "market_rates"
}

// ToQuote converts a stored snapshot into the ephemeral quote consumed by
// the strategy calculators.
func (m *MarketRate) ToQuote() *MarketQuote {
	return &MarketQuote{
		Token:              m.Token,
		Venue:              m.Venue,
		Timestamp:          m.Timestamp,
		LendAPRBase:        m.LendAPRBase,
		LendAPRReward:      m.LendAPRReward,
		BorrowAPRBase:      m.BorrowAPRBase,
		BorrowAPRReward:    m.BorrowAPRReward,
		Price:              m.Price,
		CollateralRatio:    m.CollateralRatio,
		LiqThreshold:       m.LiqThreshold,
		BorrowFee:          m.BorrowFee,
		BorrowWeight:       m.BorrowWeight,
		AvailableLiquidity: m.AvailableLiquidity,
	}
}
