package detector

import (
	"context"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/model"
	"yieldlooper/src/strategy"
)

// PriceSource answers the latest observed price for a (token, venue) market.
// Implemented by the websocket price stream and by the market rate repository.
type PriceSource interface {
	LatestPrice(ctx context.Context, token, venue string) (float64, bool)
}

// PositionSource lists the positions a scan pass considers.
type PositionSource interface {
	FindActive(ctx context.Context) ([]model.Position, error)
}

// Flag marks one position leg whose liquidation buffer has eroded past the
// threshold. The detector only flags; it never rebalances.
type Flag struct {
	PositionUID   string  `json:"position_uid"`
	Archetype     string  `json:"archetype"`
	Leg           string  `json:"leg"`
	EntryDistance float64 `json:"entry_distance"`
	LiveDistance  float64 `json:"live_distance"`
	Drift         float64 `json:"drift"`
	Timestamp     int64   `json:"timestamp"`
}

type Detector struct {
	positions PositionSource
	prices    PriceSource
	threshold float64
	log       *logger.Entry
}

func New(positions PositionSource, prices PriceSource, threshold float64) *Detector {
	return &Detector{
		positions: positions,
		prices:    prices,
		threshold: threshold,
		log:       logger.WithField("component", "RebalanceDetector"),
	}
}

// Scan recomputes liquidation distances for every active position using the
// entry token amounts at live prices and returns a flag for each leg whose
// buffer shrank by at least the threshold.
func (d *Detector) Scan(ctx context.Context) ([]Flag, error) {
	positions, err := d.positions.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	var flags []Flag
	for i := range positions {
		flags = append(flags, d.scanPosition(ctx, &positions[i], now)...)
	}
	if len(flags) > 0 {
		d.log.WithField("flagged", len(flags)).Warn("Positions need rebalancing")
	}
	return flags, nil
}

func (d *Detector) scanPosition(ctx context.Context, pos *model.Position, now int64) []Flag {
	var flags []Flag

	if pos.SizeBorrowA > 0 {
		lendPrice := d.livePrice(ctx, pos.Leg1A)
		borrowPrice := d.livePrice(ctx, pos.Leg2A)
		point := strategy.LiquidationPrice(
			pos.Leg1A.TokenAmount*lendPrice,
			pos.Leg2A.TokenAmount*borrowPrice,
			lendPrice, borrowPrice,
			pos.Leg1A.LiqThreshold, strategy.SideBorrowing, pos.Leg2A.BorrowWeight)
		if flag, ok := d.compare(pos, model.LegLabel2A, pos.Leg2A.LiquidationDistance, point.Distance, now); ok {
			flags = append(flags, flag)
		}
	}

	switch {
	case pos.SizeBorrowB > 0 && pos.SizeLendB > 0:
		lendPrice := d.livePrice(ctx, pos.Leg2B)
		borrowPrice := d.livePrice(ctx, pos.Leg3B)
		point := strategy.LiquidationPrice(
			pos.Leg2B.TokenAmount*lendPrice,
			pos.Leg3B.TokenAmount*borrowPrice,
			lendPrice, borrowPrice,
			pos.Leg2B.LiqThreshold, strategy.SideLending, pos.Leg3B.BorrowWeight)
		if flag, ok := d.compare(pos, model.LegLabel2B, pos.Leg2B.LiquidationDistance, point.Distance, now); ok {
			flags = append(flags, flag)
		}
	case pos.SizeBorrowB > 0:
		spotPrice := d.livePrice(ctx, pos.Leg1A)
		perpPrice := d.livePrice(ctx, pos.Leg3B)
		point := strategy.LiquidationPrice(
			pos.DeploymentUSD,
			pos.Leg3B.TokenAmount*perpPrice,
			spotPrice, perpPrice,
			pos.Leg3B.LiqThreshold, strategy.SideBorrowing, pos.Leg3B.BorrowWeight)
		if flag, ok := d.compare(pos, model.LegLabel3B, pos.Leg3B.LiquidationDistance, point.Distance, now); ok {
			flags = append(flags, flag)
		}
	}

	return flags
}

// compare applies the drift rule |entry| - |live| >= threshold. Legs with an
// unbounded entry distance can never erode, so they are skipped.
func (d *Detector) compare(pos *model.Position, leg string, entry, live float64, now int64) (Flag, bool) {
	if math.IsInf(entry, 0) || math.IsInf(live, 0) {
		return Flag{}, false
	}
	drift := math.Abs(entry) - math.Abs(live)
	if drift < d.threshold {
		return Flag{}, false
	}

	d.log.WithFields(logger.Fields{
		"uid":            pos.UID,
		"leg":            leg,
		"entry_distance": entry,
		"live_distance":  live,
		"drift":          drift,
	}).Warn("Liquidation buffer eroded past threshold")

	return Flag{
		PositionUID:   pos.UID,
		Archetype:     pos.Archetype,
		Leg:           leg,
		EntryDistance: entry,
		LiveDistance:  live,
		Drift:         drift,
		Timestamp:     now,
	}, true
}

// livePrice resolves the current price for a leg, falling back to the frozen
// segment price when no live feed is available.
func (d *Detector) livePrice(ctx context.Context, state model.LegState) float64 {
	if d.prices != nil {
		if price, ok := d.prices.LatestPrice(ctx, state.Symbol, state.Venue); ok && price > 0 {
			return price
		}
	}
	return state.Price
}
