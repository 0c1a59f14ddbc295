package strategy

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"yieldlooper/src/model"
)

// Inputs carries everything one analysis pass needs. Quote slots follow the
// leg labels: 1A lend at protocol A, 2A borrow at protocol A, 2B lend at
// protocol B, 3B borrow at protocol B. Perp variants put the perp quote in
// the slot matching its sizing slot (2B for a perp long hedge, 3B for a perp
// short). Slots an archetype does not use may stay nil.
type Inputs struct {
	Leg1A *model.MarketQuote
	Leg2A *model.MarketQuote
	Leg2B *model.MarketQuote
	Leg3B *model.MarketQuote

	// Basis is the optional spot/perp spread sample. Its absence prices the
	// basis cost at zero and sets BasisOmitted on the result, never an error.
	Basis *model.BasisSample

	// MinLiquidationDistance is the protection buffer d. The recursive
	// lending calculator converts it to a distance d/(1-d); the other
	// variants use it as the target liquidation distance directly.
	MinLiquidationDistance float64

	// PerpTakerFee is the perp venue taker fee, charged on entry and exit.
	PerpTakerFee float64
}

// Calculator is the shared contract of the six strategy archetypes.
// Implementations are pure: no I/O, no shared mutable state, safe to call
// concurrently.
type Calculator interface {
	Archetype() model.Archetype

	// CalculatePositions derives the sizing weights from the quotes.
	CalculatePositions(in Inputs) (model.Sizing, error)

	// CalculateGrossAPR is the sizing-weighted sum of lending APRs minus
	// borrowing APRs, before any fees.
	CalculateGrossAPR(s model.Sizing, in Inputs) float64

	// CalculateNetAPR subtracts one-time fees amortized over a year and the
	// given basis cost from the gross APR.
	CalculateNetAPR(s model.Sizing, in Inputs, basisCost float64) float64

	// Analyze runs the full pass and never returns an error: bad input
	// produces a result with Valid=false and a reason.
	Analyze(in Inputs) *model.StrategyResult

	// RebalanceAmounts computes per-leg token deltas to bring a drifted
	// position back to its frozen sizing at live prices.
	RebalanceAmounts(pos *model.Position, in Inputs) (*RebalancePlan, error)
}

var registry = map[model.Archetype]Calculator{}

// Register adds a calculator to the archetype registry. Called from init in
// each variant file; duplicate tags are a programming error.
func Register(c Calculator) {
	tag := c.Archetype()
	if _, dup := registry[tag]; dup {
		panic(fmt.Sprintf("strategy: calculator %q registered twice", tag))
	}
	registry[tag] = c
}

// ForArchetype resolves a calculator by tag.
func ForArchetype(tag model.Archetype) (Calculator, error) {
	c, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown archetype %q", tag)
	}
	return c, nil
}

// Archetypes lists the registered tags in stable order.
func Archetypes() []model.Archetype {
	tags := make([]model.Archetype, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func invalidResult(tag model.Archetype, ts int64, reason string) *model.StrategyResult {
	return &model.StrategyResult{
		AnalysisID: uuid.NewString(),
		Archetype:  tag,
		Timestamp:  ts,
		Valid:      false,
		Reason:     reason,
	}
}

func legRef(q *model.MarketQuote) model.LegRef {
	if q == nil {
		return model.LegRef{}
	}
	return model.LegRef{Symbol: q.Token, Contract: q.Contract, Venue: q.Venue}
}

func quoteTimestamp(in Inputs) int64 {
	for _, q := range []*model.MarketQuote{in.Leg1A, in.Leg2A, in.Leg2B, in.Leg3B} {
		if q != nil && q.Timestamp > 0 {
			return q.Timestamp
		}
	}
	return 0
}

// maxDeployableUSD is the tightest liquidity constraint across the legs the
// sizing actually uses. Legs not reporting liquidity do not constrain; zero
// means no leg reported any.
func maxDeployableUSD(s model.Sizing, in Inputs) float64 {
	limit := 0.0
	seen := false
	consider := func(weight float64, q *model.MarketQuote) {
		if weight <= 0 || q == nil || q.AvailableLiquidity <= 0 {
			return
		}
		cap := q.AvailableLiquidity / weight
		if !seen || cap < limit {
			limit = cap
			seen = true
		}
	}
	consider(s.LendA, in.Leg1A)
	consider(s.BorrowA, in.Leg2A)
	consider(s.LendB, in.Leg2B)
	consider(s.BorrowB, in.Leg3B)
	return limit
}

func buildResult(tag model.Archetype, in Inputs, s model.Sizing, gross, totalFee, basisCost float64, basisOmitted bool, liqDistance float64) *model.StrategyResult {
	net, apr5, apr30, apr90, breakeven := amortize(gross, totalFee)
	return &model.StrategyResult{
		AnalysisID:          uuid.NewString(),
		Archetype:           tag,
		Timestamp:           quoteTimestamp(in),
		Leg1A:               legRef(in.Leg1A),
		Leg2A:               legRef(in.Leg2A),
		Leg2B:               legRef(in.Leg2B),
		Leg3B:               legRef(in.Leg3B),
		Sizing:              s,
		GrossAPR:            gross,
		NetAPR:              net - basisCost,
		APR5D:               apr5 - basisCost,
		APR30D:              apr30 - basisCost,
		APR90D:              apr90 - basisCost,
		TotalFee:            totalFee,
		DaysToBreakeven:     breakeven,
		LiquidationDistance: liqDistance,
		MaxDeployableUSD:    maxDeployableUSD(s, in),
		BasisOmitted:        basisOmitted,
		Valid:               true,
	}
}
