package model

import "time"

// RebalanceLeg captures one leg's market state and size at a segment boundary.
type RebalanceLeg struct {
	LendAPR             float64 `json:"lend_apr"`
	BorrowAPR           float64 `json:"borrow_apr"`
	Price               float64 `json:"price"`
	LiquidationPrice    float64 `json:"liquidation_price"`
	LiquidationDistance float64 `json:"liquidation_distance"`
	TokenAmount         float64 `json:"token_amount"`
	SizeUSD             float64 `json:"size_usd"`
}

// PositionRebalance is one row of a position's append-only segment ledger.
// Sequence 1 is written at initial deployment; every rebalance appends one
// more. A row's closing fields stay null/zero while its segment is open and
// are filled exactly once, when the segment ends (rebalance or close). The
// ledger is the sole source of truth for per-segment history; Position only
// holds the running totals.
type PositionRebalance struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	PositionID uint `gorm:"not null;uniqueIndex:ux_position_rebalances_position_seq,priority:1;index" json:"position_id"`

	// Strictly increasing from 1 per position. Segments are contiguous:
	// closing timestamp of row n equals opening timestamp of row n+1.
	SequenceNumber int `gorm:"not null;uniqueIndex:ux_position_rebalances_position_seq,priority:2" json:"sequence_number"`

	OpeningTimestamp int64  `gorm:"not null" json:"opening_timestamp"`
	ClosingTimestamp *int64 `json:"closing_timestamp,omitempty"`
	Reason           string `gorm:"type:varchar(255)" json:"reason,omitempty"`

	SizeLendA   float64 `json:"size_l_a"`
	SizeBorrowA float64 `json:"size_b_a"`
	SizeLendB   float64 `json:"size_l_b"`
	SizeBorrowB float64 `json:"size_b_b"`

	Opening1A RebalanceLeg `gorm:"embedded;embeddedPrefix:open_1a_" json:"opening_1a"`
	Opening2A RebalanceLeg `gorm:"embedded;embeddedPrefix:open_2a_" json:"opening_2a"`
	Opening2B RebalanceLeg `gorm:"embedded;embeddedPrefix:open_2b_" json:"opening_2b"`
	Opening3B RebalanceLeg `gorm:"embedded;embeddedPrefix:open_3b_" json:"opening_3b"`

	Closing1A RebalanceLeg `gorm:"embedded;embeddedPrefix:close_1a_" json:"closing_1a"`
	Closing2A RebalanceLeg `gorm:"embedded;embeddedPrefix:close_2a_" json:"closing_2a"`
	Closing2B RebalanceLeg `gorm:"embedded;embeddedPrefix:close_2b_" json:"closing_2b"`
	Closing3B RebalanceLeg `gorm:"embedded;embeddedPrefix:close_3b_" json:"closing_3b"`

	RealizedEarnings float64 `json:"realized_earnings"`
	RealizedCosts    float64 `json:"realized_costs"`
	RealizedFees     float64 `json:"realized_fees"`
	RealizedPnl      float64 `json:"realized_pnl"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PositionRebalance) TableName() string {
	return "position_rebalances"
}

// Open reports whether this row's segment has not been closed yet.
func (r *PositionRebalance) Open() bool {
	return r.ClosingTimestamp == nil
}
