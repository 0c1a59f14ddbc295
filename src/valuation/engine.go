package valuation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/model"
)

const secondsPerYear = 365 * 86400

// RateKey addresses a rate series for one (token, venue) pair.
type RateKey struct {
	Token string
	Venue string
}

// RateSource is the market data feed the engine reads from. Implemented by
// repository.MarketRateRepository; coverage may be sparse.
type RateSource interface {
	// DistinctTimestamps returns the sorted distinct Unix-second timestamps
	// with any data for the given keys in [start, end].
	DistinctTimestamps(ctx context.Context, keys []RateKey, start, end int64) ([]int64, error)

	// LatestRateBefore returns the newest rate for key at or before ts, or
	// nil when no row exists yet.
	LatestRateBefore(ctx context.Context, key RateKey, ts int64) (*model.MarketRate, error)
}

// FillEvent records one forward-filled period in the audit trail. FilledFrom
// is the timestamp of the substituted rate, zero when no prior rate existed
// and the period accrued at rate 0.
type FillEvent struct {
	Leg        string `json:"leg"`
	Timestamp  int64  `json:"timestamp"`
	FilledFrom int64  `json:"filled_from,omitempty"`
	Stale      bool   `json:"stale,omitempty"`
}

// Result is one point-in-time valuation over a window.
type Result struct {
	PositionUID string `json:"position_uid"`
	StartTS     int64  `json:"start_ts"`
	EndTS       int64  `json:"end_ts"`

	LendEarnings float64 `json:"lend_earnings"`
	BorrowCosts  float64 `json:"borrow_costs"`
	Fees         float64 `json:"fees"`
	NetEarnings  float64 `json:"net_earnings"`
	CurrentValue float64 `json:"current_value"`

	Audit []FillEvent `json:"audit,omitempty"`
}

// Engine integrates per-period rate data into earnings and costs over a time
// window. Synchronous and stateless between calls; every operation takes an
// explicit Unix-second window, never an implicit now.
type Engine struct {
	source RateSource
	cfg    *Config
	log    *logger.Entry
}

func NewEngine(source RateSource, cfg *Config) *Engine {
	if cfg == nil {
		cfg = GetConfig()
	}
	return &Engine{
		source: source,
		cfg:    cfg,
		log:    logger.WithField("component", "ValuationEngine"),
	}
}

type legAccrual struct {
	label  string
	key    RateKey
	weight float64
	borrow bool
}

// CalculatePositionValue accrues lending earnings and borrowing costs for the
// position over [startTS, endTS]. A leg's missing rate at a boundary is
// replaced by its most recent prior valid rate (0 when none exists yet); every
// substitution lands in the returned audit trail and the calculation never
// fails on missing data. One-time borrow fees are charged only when the window
// starts at the position's entry, i.e. the first segment.
func (e *Engine) CalculatePositionValue(ctx context.Context, pos *model.Position, startTS, endTS int64) (*Result, error) {
	if startTS <= 0 || endTS <= 0 {
		return nil, fmt.Errorf("valuation window must be Unix seconds, got [%d, %d]", startTS, endTS)
	}
	if endTS < startTS {
		return nil, fmt.Errorf("valuation window end %d before start %d", endTS, startTS)
	}

	s := pos.Sizing()
	legs := []*legAccrual{
		{label: model.LegLabel1A, key: RateKey{pos.Leg1A.Symbol, pos.Leg1A.Venue}, weight: s.LendA},
		{label: model.LegLabel2A, key: RateKey{pos.Leg2A.Symbol, pos.Leg2A.Venue}, weight: s.BorrowA, borrow: true},
		{label: model.LegLabel2B, key: RateKey{pos.Leg2B.Symbol, pos.Leg2B.Venue}, weight: s.LendB},
		{label: model.LegLabel3B, key: RateKey{pos.Leg3B.Symbol, pos.Leg3B.Venue}, weight: s.BorrowB, borrow: true},
	}
	active := legs[:0]
	keys := make([]RateKey, 0, len(legs))
	for _, leg := range legs {
		if leg.weight > 0 {
			active = append(active, leg)
			keys = append(keys, leg.key)
		}
	}

	boundaries, err := e.boundaries(ctx, keys, startTS, endTS)
	if err != nil {
		return nil, err
	}

	deployment := decimal.NewFromFloat(pos.DeploymentUSD)
	lendEarnings := decimal.Zero
	borrowCosts := decimal.Zero
	audit := []FillEvent{}

	for i := 0; i+1 < len(boundaries); i++ {
		periodStart, periodEnd := boundaries[i], boundaries[i+1]
		years := decimal.NewFromInt(periodEnd - periodStart).
			Div(decimal.NewFromInt(secondsPerYear))

		for _, leg := range active {
			rate, event, err := e.rateFor(ctx, leg, periodStart)
			if err != nil {
				return nil, err
			}
			if event != nil {
				audit = append(audit, *event)
			}

			accrued := deployment.
				Mul(decimal.NewFromFloat(leg.weight)).
				Mul(decimal.NewFromFloat(rate)).
				Mul(years)
			if leg.borrow {
				borrowCosts = borrowCosts.Add(accrued)
			} else {
				lendEarnings = lendEarnings.Add(accrued)
			}
		}
	}

	fees := decimal.Zero
	if startTS == pos.EntryTimestamp {
		fees = deployment.Mul(
			decimal.NewFromFloat(s.BorrowA*pos.Leg2A.BorrowFee + s.BorrowB*pos.Leg3B.BorrowFee))
	}

	net := lendEarnings.Sub(borrowCosts).Sub(fees)

	return &Result{
		PositionUID:  pos.UID,
		StartTS:      startTS,
		EndTS:        endTS,
		LendEarnings: lendEarnings.InexactFloat64(),
		BorrowCosts:  borrowCosts.InexactFloat64(),
		Fees:         fees.InexactFloat64(),
		NetEarnings:  net.InexactFloat64(),
		CurrentValue: deployment.Add(net).InexactFloat64(),
		Audit:        audit,
	}, nil
}

// boundaries is the sorted accrual grid: the window edges plus every distinct
// market timestamp strictly inside the window.
func (e *Engine) boundaries(ctx context.Context, keys []RateKey, startTS, endTS int64) ([]int64, error) {
	stamps, err := e.source.DistinctTimestamps(ctx, keys, startTS, endTS)
	if err != nil {
		return nil, fmt.Errorf("gathering rate timestamps: %w", err)
	}

	set := map[int64]struct{}{startTS: {}, endTS: {}}
	for _, ts := range stamps {
		if ts > startTS && ts < endTS {
			set[ts] = struct{}{}
		}
	}
	out := make([]int64, 0, len(set))
	for ts := range set {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// rateFor resolves one leg's rate at a period opening, forward-filling from
// the most recent prior observation when the boundary has no row of its own.
func (e *Engine) rateFor(ctx context.Context, leg *legAccrual, ts int64) (float64, *FillEvent, error) {
	rate, err := e.source.LatestRateBefore(ctx, leg.key, ts)
	if err != nil {
		return 0, nil, fmt.Errorf("reading rate for %s@%s: %w", leg.key.Token, leg.key.Venue, err)
	}

	if rate == nil {
		// Nothing observed yet for this leg: accrue at zero, keep looking on
		// later boundaries.
		e.log.WithFields(logger.Fields{
			"leg":       leg.label,
			"token":     leg.key.Token,
			"venue":     leg.key.Venue,
			"timestamp": ts,
		}).Warn("no rate observed yet, accruing at zero")
		return 0, &FillEvent{Leg: leg.label, Timestamp: ts}, nil
	}

	value := rate.LendAPRBase + rate.LendAPRReward
	if leg.borrow {
		value = rate.BorrowAPRBase + rate.BorrowAPRReward
	}

	if rate.Timestamp == ts {
		return value, nil, nil
	}

	stale := time.Duration(ts-rate.Timestamp)*time.Second > e.cfg.MaxRateStaleness
	if stale {
		e.log.WithFields(logger.Fields{
			"leg":         leg.label,
			"token":       leg.key.Token,
			"venue":       leg.key.Venue,
			"timestamp":   ts,
			"filled_from": rate.Timestamp,
		}).Warn("forward-filled rate exceeds staleness ceiling")
	}
	return value, &FillEvent{Leg: leg.label, Timestamp: ts, FilledFrom: rate.Timestamp, Stale: stale}, nil
}
