package model

import "time"

const (
	PositionStatusActive = "active"
	PositionStatusClosed = "closed"
)

// Leg labels used across the ledger, valuation audit and detector flags.
const (
	LegLabel1A = "1A"
	LegLabel2A = "2A"
	LegLabel2B = "2B"
	LegLabel3B = "3B"
)

// LegState is the per-leg slice of a position's snapshot. On a fresh position
// it holds entry conditions; after a rebalance it holds the most recent
// segment's opening state. Readers needing true original entry conditions must
// read the sequence 1 ledger row once RebalanceCount > 0.
type LegState struct {
	Symbol   string `gorm:"type:varchar(50)" json:"symbol"`
	Contract string `gorm:"type:varchar(100)" json:"contract"`
	Venue    string `gorm:"type:varchar(50)" json:"venue"`

	LendAPR         float64 `json:"lend_apr"`
	BorrowAPR       float64 `json:"borrow_apr"`
	Price           float64 `json:"price"`
	CollateralRatio float64 `json:"collateral_ratio"`
	LiqThreshold    float64 `json:"liq_threshold"`
	BorrowFee       float64 `json:"borrow_fee"`
	BorrowWeight    float64 `json:"borrow_weight"`

	TokenAmount float64 `json:"token_amount"`
	SizeUSD     float64 `json:"size_usd"`

	LiquidationPrice    float64 `json:"liquidation_price"`
	LiquidationDistance float64 `json:"liquidation_distance"`
}

// Position is a live or closed deployment of one strategy. Sizing is frozen at
// creation and never changes for the life of the position; only token amounts
// drift and are corrected by rebalancing. AccumulatedRealizedPnl is a cached
// projection of the rebalance ledger and can be rebuilt from it.
type Position struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UID       string `gorm:"type:varchar(36);not null;uniqueIndex" json:"uid"`
	Archetype string `gorm:"type:varchar(50);not null;index" json:"archetype"`
	Status    string `gorm:"type:varchar(20);not null;default:active;index" json:"status"`

	DeploymentUSD float64 `gorm:"not null" json:"deployment_usd"`

	// Unix seconds, supplied explicitly by the caller. Never wall-clock now.
	EntryTimestamp      int64 `gorm:"not null" json:"entry_timestamp"`
	LastSegmentOpenedAt int64 `gorm:"not null" json:"last_segment_opened_at"`

	SizeLendA   float64 `json:"size_l_a"`
	SizeBorrowA float64 `json:"size_b_a"`
	SizeLendB   float64 `json:"size_l_b"`
	SizeBorrowB float64 `json:"size_b_b"`

	Leg1A LegState `gorm:"embedded;embeddedPrefix:leg1a_" json:"leg_1a"`
	Leg2A LegState `gorm:"embedded;embeddedPrefix:leg2a_" json:"leg_2a"`
	Leg2B LegState `gorm:"embedded;embeddedPrefix:leg2b_" json:"leg_2b"`
	Leg3B LegState `gorm:"embedded;embeddedPrefix:leg3b_" json:"leg_3b"`

	RebalanceCount         int     `gorm:"not null;default:0" json:"rebalance_count"`
	AccumulatedRealizedPnl float64 `gorm:"not null;default:0" json:"accumulated_realized_pnl"`

	ClosedAt    *int64 `json:"closed_at,omitempty"`
	CloseReason string `gorm:"type:varchar(255)" json:"close_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// Sizing returns the frozen sizing weights.
func (p *Position) Sizing() Sizing {
	return Sizing{
		LendA:   p.SizeLendA,
		BorrowA: p.SizeBorrowA,
		LendB:   p.SizeLendB,
		BorrowB: p.SizeBorrowB,
	}
}

// IsActive reports whether the position can still be rebalanced or closed.
func (p *Position) IsActive() bool {
	return p.Status == PositionStatusActive
}
