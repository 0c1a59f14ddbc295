package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yieldlooper/src/database"
	"yieldlooper/src/model"
)

// RebalanceRepository handles the append-only segment ledger. Rows are
// appended with null closing fields and finalized exactly once; nothing is
// ever deleted except together with the owning position.
type RebalanceRepository struct {
	db *gorm.DB
}

func NewRebalanceRepository() *RebalanceRepository {
	return &RebalanceRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *RebalanceRepository) WithDB(db *gorm.DB) *RebalanceRepository {
	return &RebalanceRepository{db: db}
}

// Append inserts a new ledger row. The unique (position_id, sequence_number)
// index rejects a duplicate sequence at the store level.
func (r *RebalanceRepository) Append(ctx context.Context, row *model.PositionRebalance) error {
	logger.WithFields(logger.Fields{
		"repo":        "RebalanceRepository",
		"op":          "Append",
		"position_id": row.PositionID,
		"sequence":    row.SequenceNumber,
	}).Debug("Appending ledger row")

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo":        "RebalanceRepository",
			"op":          "Append",
			"position_id": row.PositionID,
			"sequence":    row.SequenceNumber,
		}).WithError(err).Error("Failed to append ledger row")
		return err
	}
	return nil
}

// Finalize persists the closing fields of a previously appended row.
func (r *RebalanceRepository) Finalize(ctx context.Context, row *model.PositionRebalance) error {
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo":        "RebalanceRepository",
			"op":          "Finalize",
			"position_id": row.PositionID,
			"sequence":    row.SequenceNumber,
		}).WithError(err).Error("Failed to finalize ledger row")
		return err
	}
	return nil
}

// OpenRow returns the position's ledger row whose segment has not been closed
// yet. Returns (nil, nil) when every row is closed.
func (r *RebalanceRepository) OpenRow(ctx context.Context, positionID uint) (*model.PositionRebalance, error) {
	var row model.PositionRebalance
	err := r.db.WithContext(ctx).
		Where("position_id = ? AND closing_timestamp IS NULL", positionID).
		Order("sequence_number DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":        "RebalanceRepository",
			"op":          "OpenRow",
			"position_id": positionID,
		}).WithError(err).Error("Failed to fetch open ledger row")
		return nil, err
	}
	return &row, nil
}

// ListByPosition returns the full ledger for a position in sequence order.
func (r *RebalanceRepository) ListByPosition(ctx context.Context, positionID uint) ([]model.PositionRebalance, error) {
	var rows []model.PositionRebalance
	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("sequence_number ASC").
		Find(&rows).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":        "RebalanceRepository",
			"op":          "ListByPosition",
			"position_id": positionID,
		}).WithError(err).Error("Failed to list ledger rows")
		return nil, err
	}
	return rows, nil
}

// SumRealizedPnl rebuilds the position's running total from the ledger. The
// accumulator on Position is a cached projection of this sum.
func (r *RebalanceRepository) SumRealizedPnl(ctx context.Context, positionID uint) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&model.PositionRebalance{}).
		Where("position_id = ?", positionID).
		Select("COALESCE(SUM(realized_pnl), 0)").
		Scan(&total).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":        "RebalanceRepository",
			"op":          "SumRealizedPnl",
			"position_id": positionID,
		}).WithError(err).Error("Failed to sum realized pnl")
		return 0, err
	}
	return total, nil
}

// DeleteByPosition removes a position's ledger. Only used when the owning
// position itself is deleted.
func (r *RebalanceRepository) DeleteByPosition(ctx context.Context, positionID uint) error {
	return r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Delete(&model.PositionRebalance{}).Error
}
