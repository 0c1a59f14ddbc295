package model

import "time"

// BasisSample is one observed spread between a spot contract and its
// perpetual-futures proxy, annualized as a decimal. Coverage is sparse and
// optional; perp calculators tolerate its absence.
type BasisSample struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	PerpSymbol   string `gorm:"type:varchar(50);not null;uniqueIndex:ux_basis_samples_pair_ts,priority:1" json:"perp_symbol"`
	SpotContract string `gorm:"type:varchar(100);not null;uniqueIndex:ux_basis_samples_pair_ts,priority:2" json:"spot_contract"`
	Timestamp    int64  `gorm:"not null;uniqueIndex:ux_basis_samples_pair_ts,priority:3;index" json:"timestamp"`

	Spread float64 `json:"spread"`

	CreatedAt time.Time `json:"created_at"`
}

func (BasisSample) TableName() string {
	return "basis_samples"
}
