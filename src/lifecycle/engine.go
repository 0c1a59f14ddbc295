package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yieldlooper/src/model"
	"yieldlooper/src/repository"
	"yieldlooper/src/strategy"
	"yieldlooper/src/valuation"
)

var (
	ErrPositionNotFound  = errors.New("position not found")
	ErrPositionNotActive = errors.New("position is not active")

	// ErrStaleTimestamp is returned when a rebalance or close timestamp is at
	// or before the opening of the current segment. It indicates a caller
	// ordering bug, not a transient failure; do not retry.
	ErrStaleTimestamp = errors.New("timestamp not after the current segment opening")

	ErrInvalidTimestamp = errors.New("timestamp must be positive Unix seconds")
)

// PositionStore is the slice of the position repository the engine needs.
type PositionStore interface {
	Create(ctx context.Context, pos *model.Position) error
	FindByUID(ctx context.Context, uid string) (*model.Position, error)
	Save(ctx context.Context, pos *model.Position) error
}

// LedgerStore is the slice of the rebalance repository the engine needs.
type LedgerStore interface {
	Append(ctx context.Context, row *model.PositionRebalance) error
	Finalize(ctx context.Context, row *model.PositionRebalance) error
	OpenRow(ctx context.Context, positionID uint) (*model.PositionRebalance, error)
}

// Valuer computes segment earnings. Implemented by valuation.Engine.
type Valuer interface {
	CalculatePositionValue(ctx context.Context, pos *model.Position, startTS, endTS int64) (*valuation.Result, error)
}

// RateReader resolves live market state at segment boundaries.
type RateReader interface {
	LatestRateBefore(ctx context.Context, key valuation.RateKey, ts int64) (*model.MarketRate, error)
}

// TxRunner wraps one lifecycle mutation in an all-or-nothing transaction.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(positions PositionStore, ledger LedgerStore) error) error
}

type gormRunner struct {
	db        *gorm.DB
	positions *repository.PositionRepository
	ledger    *repository.RebalanceRepository
}

func (r *gormRunner) InTransaction(ctx context.Context, fn func(positions PositionStore, ledger LedgerStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.positions.WithDB(tx), r.ledger.WithDB(tx))
	})
}

// Engine owns the position state machine: create, rebalance, close. Every
// mutation appends to or finalizes the segment ledger; sizing is frozen at
// creation and never touched again. The engine assumes at most one in-flight
// mutation per position; concurrent callers need external locking.
type Engine struct {
	positions PositionStore
	ledger    LedgerStore
	runner    TxRunner
	valuer    Valuer
	rates     RateReader
	log       *logger.Entry
}

// NewEngine wires the engine onto a live database connection.
func NewEngine(db *gorm.DB, valuer Valuer) *Engine {
	positions := repository.NewPositionRepository().WithDB(db)
	ledger := repository.NewRebalanceRepository().WithDB(db)
	return &Engine{
		positions: positions,
		ledger:    ledger,
		runner:    &gormRunner{db: db, positions: positions, ledger: ledger},
		valuer:    valuer,
		rates:     repository.NewMarketRateRepository().WithDB(db),
		log:       logger.WithField("component", "LifecycleEngine"),
	}
}

// NewEngineWithStores builds an engine from explicit collaborators. Used by
// tests.
func NewEngineWithStores(positions PositionStore, ledger LedgerStore, runner TxRunner, valuer Valuer, rates RateReader) *Engine {
	return &Engine{
		positions: positions,
		ledger:    ledger,
		runner:    runner,
		valuer:    valuer,
		rates:     rates,
		log:       logger.WithField("component", "LifecycleEngine"),
	}
}

// CreateRequest is everything needed to open a position. Quotes must cover
// every leg the sizing uses; EntryTimestamp is explicit Unix seconds, never
// derived from the wall clock.
type CreateRequest struct {
	Archetype      model.Archetype
	DeploymentUSD  float64
	EntryTimestamp int64
	Sizing         model.Sizing
	Quotes         strategy.Inputs
	Reason         string
}

// Create freezes the sizing and entry market state into a new position and
// writes the sequence 1 ledger row, both in one transaction.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Position, error) {
	if req.EntryTimestamp <= 0 {
		return nil, ErrInvalidTimestamp
	}
	if req.DeploymentUSD <= 0 {
		return nil, errors.New("deployment must be positive")
	}
	if _, err := strategy.ForArchetype(req.Archetype); err != nil {
		return nil, err
	}

	pos := &model.Position{
		UID:                 uuid.NewString(),
		Archetype:           string(req.Archetype),
		Status:              model.PositionStatusActive,
		DeploymentUSD:       req.DeploymentUSD,
		EntryTimestamp:      req.EntryTimestamp,
		LastSegmentOpenedAt: req.EntryTimestamp,
		SizeLendA:           req.Sizing.LendA,
		SizeBorrowA:         req.Sizing.BorrowA,
		SizeLendB:           req.Sizing.LendB,
		SizeBorrowB:         req.Sizing.BorrowB,
	}

	if err := freezeLegStates(pos, req.Quotes); err != nil {
		return nil, err
	}
	applyLiquidationStates(pos)

	firstRow := &model.PositionRebalance{
		SequenceNumber:   1,
		OpeningTimestamp: req.EntryTimestamp,
		Reason:           req.Reason,
		SizeLendA:        pos.SizeLendA,
		SizeBorrowA:      pos.SizeBorrowA,
		SizeLendB:        pos.SizeLendB,
		SizeBorrowB:      pos.SizeBorrowB,
		Opening1A:        ledgerLeg(pos.Leg1A),
		Opening2A:        ledgerLeg(pos.Leg2A),
		Opening2B:        ledgerLeg(pos.Leg2B),
		Opening3B:        ledgerLeg(pos.Leg3B),
	}

	err := e.runner.InTransaction(ctx, func(positions PositionStore, ledger LedgerStore) error {
		if err := positions.Create(ctx, pos); err != nil {
			return err
		}
		firstRow.PositionID = pos.ID
		return ledger.Append(ctx, firstRow)
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logger.Fields{
		"uid":        pos.UID,
		"archetype":  pos.Archetype,
		"deployment": pos.DeploymentUSD,
	}).Info("Position created")
	return pos, nil
}

// Rebalance closes the current ledger segment at liveTS, appends the next one
// and rolls the position's snapshot fields forward to the closing values.
// Sizing is never altered; only frozen market fields and token amounts move.
func (e *Engine) Rebalance(ctx context.Context, uid string, liveTS int64, reason string) (*model.PositionRebalance, error) {
	pos, err := e.loadActive(ctx, uid)
	if err != nil {
		return nil, err
	}
	if liveTS <= 0 {
		return nil, ErrInvalidTimestamp
	}
	if liveTS <= pos.LastSegmentOpenedAt {
		return nil, fmt.Errorf("%w: live_ts %d, segment opened %d", ErrStaleTimestamp, liveTS, pos.LastSegmentOpenedAt)
	}

	snap, err := e.captureSegment(ctx, pos, liveTS)
	if err != nil {
		return nil, err
	}

	nextRow := &model.PositionRebalance{
		PositionID:       pos.ID,
		OpeningTimestamp: liveTS,
		Reason:           reason,
		SizeLendA:        pos.SizeLendA,
		SizeBorrowA:      pos.SizeBorrowA,
		SizeLendB:        pos.SizeLendB,
		SizeBorrowB:      pos.SizeBorrowB,
	}

	err = e.runner.InTransaction(ctx, func(positions PositionStore, ledger LedgerStore) error {
		open, err := ledger.OpenRow(ctx, pos.ID)
		if err != nil {
			return err
		}
		if open == nil {
			return fmt.Errorf("position %s has no open ledger segment", pos.UID)
		}

		snap.finalizeRow(open, liveTS, reason)
		if err := ledger.Finalize(ctx, open); err != nil {
			return err
		}

		nextRow.SequenceNumber = open.SequenceNumber + 1
		nextRow.Opening1A = snap.next1A
		nextRow.Opening2A = snap.next2A
		nextRow.Opening2B = snap.next2B
		nextRow.Opening3B = snap.next3B
		if err := ledger.Append(ctx, nextRow); err != nil {
			return err
		}

		snap.rollForward(pos, liveTS)
		pos.RebalanceCount++
		return positions.Save(ctx, pos)
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logger.Fields{
		"uid":      pos.UID,
		"live_ts":  liveTS,
		"sequence": nextRow.SequenceNumber,
		"pnl":      snap.result.NetEarnings,
	}).Info("Position rebalanced")
	return nextRow, nil
}

// Close captures the final segment and flips the position to closed. The
// status transition is committed first; a failure writing the final ledger
// row is logged and deliberately does not block the close.
func (e *Engine) Close(ctx context.Context, uid string, closeTS int64, reason string) (*model.Position, error) {
	pos, err := e.loadActive(ctx, uid)
	if err != nil {
		return nil, err
	}
	if closeTS <= 0 {
		return nil, ErrInvalidTimestamp
	}
	if closeTS <= pos.LastSegmentOpenedAt {
		return nil, fmt.Errorf("%w: close_ts %d, segment opened %d", ErrStaleTimestamp, closeTS, pos.LastSegmentOpenedAt)
	}

	snap, err := e.captureSegment(ctx, pos, closeTS)
	if err != nil {
		return nil, err
	}

	err = e.runner.InTransaction(ctx, func(positions PositionStore, _ LedgerStore) error {
		snap.rollForward(pos, closeTS)
		pos.Status = model.PositionStatusClosed
		pos.ClosedAt = &closeTS
		pos.CloseReason = reason
		return positions.Save(ctx, pos)
	})
	if err != nil {
		return nil, err
	}

	// Closing must never get stuck on the ledger: the status transition is
	// already durable, so a failure here is logged and swallowed.
	if err := e.finalizeLastSegment(ctx, pos, snap, closeTS, reason); err != nil {
		e.log.WithFields(logger.Fields{
			"uid":      pos.UID,
			"close_ts": closeTS,
		}).WithError(err).Error("Final ledger write failed after close; ledger is missing the last segment")
	}

	e.log.WithFields(logger.Fields{
		"uid":      pos.UID,
		"close_ts": closeTS,
		"pnl":      pos.AccumulatedRealizedPnl,
	}).Info("Position closed")
	return pos, nil
}

func (e *Engine) finalizeLastSegment(ctx context.Context, pos *model.Position, snap *segmentSnapshot, closeTS int64, reason string) error {
	open, err := e.ledger.OpenRow(ctx, pos.ID)
	if err != nil {
		return err
	}
	if open == nil {
		return fmt.Errorf("no open ledger segment for position %s", pos.UID)
	}
	snap.finalizeRow(open, closeTS, reason)
	return e.ledger.Finalize(ctx, open)
}

func (e *Engine) loadActive(ctx context.Context, uid string) (*model.Position, error) {
	pos, err := e.positions.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, uid)
	}
	if !pos.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrPositionNotActive, uid, pos.Status)
	}
	return pos, nil
}
