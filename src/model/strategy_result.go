package model

// Archetype identifies one of the supported strategy shapes. The strategy
// package keeps a registry keyed by these tags.
type Archetype string

const (
	ArchetypeStableLending          Archetype = "stable_lending"
	ArchetypeNoLoop                 Archetype = "no_loop"
	ArchetypeRecursiveLending       Archetype = "recursive_lending"
	ArchetypePerpLending            Archetype = "perp_lending"
	ArchetypePerpBorrowing          Archetype = "perp_borrowing"
	ArchetypePerpBorrowingRecursive Archetype = "perp_borrowing_recursive"
)

// Sizing expresses a strategy as four non-negative multipliers, fractions of a
// one-unit deployment. Legs an archetype does not use stay at 0.0 so every
// strategy shares one schema.
type Sizing struct {
	LendA   float64 `json:"l_a"`
	BorrowA float64 `json:"b_a"`
	LendB   float64 `json:"l_b"`
	BorrowB float64 `json:"b_b"`
}

// LegRef names one side of a strategy at one venue.
type LegRef struct {
	Symbol   string `json:"symbol"`
	Contract string `json:"contract"`
	Venue    string `json:"venue"`
}

// StrategyResult is the immutable output of one analysis pass. It is produced
// fresh each pass and consumed only to create a Position, never persisted.
// Callers must check Valid before trusting any numeric field.
type StrategyResult struct {
	AnalysisID string    `json:"analysis_id"`
	Archetype  Archetype `json:"archetype"`
	Timestamp  int64     `json:"timestamp"`

	Leg1A LegRef `json:"leg_1a"`
	Leg2A LegRef `json:"leg_2a"`
	Leg2B LegRef `json:"leg_2b"`
	Leg3B LegRef `json:"leg_3b"`

	Sizing Sizing `json:"sizing"`

	GrossAPR        float64 `json:"gross_apr"`
	NetAPR          float64 `json:"net_apr"`
	APR5D           float64 `json:"apr_5d"`
	APR30D          float64 `json:"apr_30d"`
	APR90D          float64 `json:"apr_90d"`
	TotalFee        float64 `json:"total_fee"`
	DaysToBreakeven float64 `json:"days_to_breakeven"`

	LiquidationDistance float64 `json:"liquidation_distance"`
	MaxDeployableUSD    float64 `json:"max_deployable_usd"`

	// BasisOmitted is set when a perp variant could not find basis data and
	// priced the basis cost at zero.
	BasisOmitted bool `json:"basis_omitted,omitempty"`

	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
