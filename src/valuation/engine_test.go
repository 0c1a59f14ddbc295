package valuation

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yieldlooper/src/model"
)

type fakeRateSource struct {
	rates map[RateKey][]*model.MarketRate
}

func (f *fakeRateSource) add(key RateKey, ts int64, lendAPR, borrowAPR float64) {
	f.rates[key] = append(f.rates[key], &model.MarketRate{
		Token: key.Token, Venue: key.Venue, Timestamp: ts,
		LendAPRBase: lendAPR, BorrowAPRBase: borrowAPR, Price: 1,
	})
}

func (f *fakeRateSource) DistinctTimestamps(_ context.Context, keys []RateKey, start, end int64) ([]int64, error) {
	set := map[int64]struct{}{}
	for _, key := range keys {
		for _, r := range f.rates[key] {
			if r.Timestamp >= start && r.Timestamp <= end {
				set[r.Timestamp] = struct{}{}
			}
		}
	}
	out := make([]int64, 0, len(set))
	for ts := range set {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeRateSource) LatestRateBefore(_ context.Context, key RateKey, ts int64) (*model.MarketRate, error) {
	var best *model.MarketRate
	for _, r := range f.rates[key] {
		if r.Timestamp <= ts && (best == nil || r.Timestamp > best.Timestamp) {
			best = r
		}
	}
	return best, nil
}

func newFakeSource() *fakeRateSource {
	return &fakeRateSource{rates: map[RateKey][]*model.MarketRate{}}
}

func testConfig() *Config {
	return &Config{MaxRateStaleness: 72 * time.Hour}
}

const t0 = int64(1_700_000_000)

func stablePosition(deployment float64) *model.Position {
	return &model.Position{
		UID:                 "pos-1",
		Archetype:           string(model.ArchetypeStableLending),
		Status:              model.PositionStatusActive,
		DeploymentUSD:       deployment,
		EntryTimestamp:      t0,
		LastSegmentOpenedAt: t0,
		SizeLendA:           1.0,
		Leg1A:               model.LegState{Symbol: "USDC", Venue: "aave", Price: 1, TokenAmount: deployment},
	}
}

func TestStableLendingThirtyDayEarnings(t *testing.T) {
	source := newFakeSource()
	source.add(RateKey{"USDC", "aave"}, t0, 0.05, 0)

	engine := NewEngine(source, testConfig())
	end := t0 + 30*86400

	res, err := engine.CalculatePositionValue(context.Background(), stablePosition(1000), t0, end)
	require.NoError(t, err)

	// 1000 * 0.05 * 30/365
	assert.InDelta(t, 4.1096, res.NetEarnings, 1e-3)
	assert.InDelta(t, 1004.1096, res.CurrentValue, 1e-3)
	assert.Equal(t, 0.0, res.Fees)
	assert.Equal(t, 0.0, res.BorrowCosts)
}

func TestForwardFillUsesPriorRateNotZero(t *testing.T) {
	lendKey := RateKey{"USDC", "aave"}
	borrowKey := RateKey{"ETH", "aave"}

	t1 := t0 + 86400
	t2 := t0 + 2*86400

	source := newFakeSource()
	// The lend leg has a gap at t1; the borrow leg creates the t1 boundary.
	source.add(lendKey, t0, 0.10, 0)
	source.add(lendKey, t2, 0.20, 0)
	source.add(borrowKey, t0, 0, 0.04)
	source.add(borrowKey, t1, 0, 0.04)
	source.add(borrowKey, t2, 0, 0.04)

	pos := stablePosition(1000)
	pos.SizeBorrowA = 0.5
	pos.Leg2A = model.LegState{Symbol: "ETH", Venue: "aave", Price: 2000}

	engine := NewEngine(source, testConfig())
	res, err := engine.CalculatePositionValue(context.Background(), pos, t0, t2)
	require.NoError(t, err)

	// Both periods accrue the lend leg at 0.10: the t1 gap forward-fills from
	// t0, not zero, not an interpolation toward 0.20.
	wantLend := 1000 * 0.10 * float64(t2-t0) / (365 * 86400)
	assert.InDelta(t, wantLend, res.LendEarnings, 1e-9)

	wantBorrow := 1000 * 0.5 * 0.04 * float64(t2-t0) / (365 * 86400)
	assert.InDelta(t, wantBorrow, res.BorrowCosts, 1e-9)

	require.Len(t, res.Audit, 1)
	assert.Equal(t, model.LegLabel1A, res.Audit[0].Leg)
	assert.Equal(t, t1, res.Audit[0].Timestamp)
	assert.Equal(t, t0, res.Audit[0].FilledFrom)
	assert.False(t, res.Audit[0].Stale)
}

func TestZeroFillBeforeFirstObservation(t *testing.T) {
	lendKey := RateKey{"USDC", "aave"}
	t1 := t0 + 86400
	t2 := t0 + 2*86400

	source := newFakeSource()
	// First observation only arrives at t1.
	source.add(lendKey, t1, 0.10, 0)
	source.add(lendKey, t2, 0.10, 0)

	engine := NewEngine(source, testConfig())
	res, err := engine.CalculatePositionValue(context.Background(), stablePosition(1000), t0, t2)
	require.NoError(t, err)

	// [t0,t1) accrues at zero, [t1,t2) at 0.10.
	want := 1000 * 0.10 * float64(t2-t1) / (365 * 86400)
	assert.InDelta(t, want, res.LendEarnings, 1e-9)

	require.Len(t, res.Audit, 1)
	assert.Equal(t, int64(0), res.Audit[0].FilledFrom)
}

func TestStaleForwardFillIsFlagged(t *testing.T) {
	lendKey := RateKey{"USDC", "aave"}
	borrowKey := RateKey{"ETH", "aave"}
	tLate := t0 + 10*86400 // far past the 72h ceiling

	source := newFakeSource()
	source.add(lendKey, t0, 0.10, 0)
	source.add(borrowKey, t0, 0, 0.04)
	source.add(borrowKey, tLate, 0, 0.04)

	pos := stablePosition(1000)
	pos.SizeBorrowA = 0.5
	pos.Leg2A = model.LegState{Symbol: "ETH", Venue: "aave", Price: 2000}

	engine := NewEngine(source, testConfig())
	res, err := engine.CalculatePositionValue(context.Background(), pos, t0, tLate+86400)
	require.NoError(t, err)

	var stale []FillEvent
	for _, ev := range res.Audit {
		if ev.Stale {
			stale = append(stale, ev)
		}
	}
	require.NotEmpty(t, stale)
	assert.Equal(t, model.LegLabel1A, stale[0].Leg)
	assert.Equal(t, t0, stale[0].FilledFrom)
}

func TestEntryFeesOnlyOnFirstSegment(t *testing.T) {
	lendKey := RateKey{"USDC", "aave"}
	borrowKey := RateKey{"ETH", "aave"}

	source := newFakeSource()
	source.add(lendKey, t0, 0.05, 0)
	source.add(borrowKey, t0, 0, 0.03)

	pos := stablePosition(1000)
	pos.SizeBorrowA = 0.5
	pos.Leg2A = model.LegState{Symbol: "ETH", Venue: "aave", Price: 2000, BorrowFee: 0.002}

	engine := NewEngine(source, testConfig())

	first, err := engine.CalculatePositionValue(context.Background(), pos, t0, t0+86400)
	require.NoError(t, err)
	assert.InDelta(t, 1000*0.5*0.002, first.Fees, 1e-12)
	assert.InDelta(t, first.LendEarnings-first.BorrowCosts-first.Fees, first.NetEarnings, 1e-12)

	// A later segment does not pay entry fees again.
	source.add(lendKey, t0+86400, 0.05, 0)
	source.add(borrowKey, t0+86400, 0, 0.03)
	second, err := engine.CalculatePositionValue(context.Background(), pos, t0+86400, t0+2*86400)
	require.NoError(t, err)
	assert.Equal(t, 0.0, second.Fees)
}

func TestInvalidWindowRejected(t *testing.T) {
	engine := NewEngine(newFakeSource(), testConfig())
	pos := stablePosition(1000)

	_, err := engine.CalculatePositionValue(context.Background(), pos, 0, t0)
	assert.Error(t, err)

	_, err = engine.CalculatePositionValue(context.Background(), pos, t0, t0-1)
	assert.Error(t, err)
}
