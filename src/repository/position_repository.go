package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yieldlooper/src/database"
	"yieldlooper/src/model"
)

// PositionRepository handles read/write operations for positions. Lifecycle
// mutations are expected to run inside a caller-controlled transaction via
// WithDB.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main
// read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position. The given position will be updated with the
// generated ID and timestamps.
func (r *PositionRepository) Create(ctx context.Context, pos *model.Position) error {
	logger.WithFields(logger.Fields{
		"repo":      "PositionRepository",
		"op":        "Create",
		"uid":       pos.UID,
		"archetype": pos.Archetype,
	}).Debug("Creating new position")

	if err := r.db.WithContext(ctx).Create(pos).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo": "PositionRepository",
			"op":   "Create",
			"uid":  pos.UID,
		}).WithError(err).Error("Failed to create position")
		return err
	}
	return nil
}

// FindByUID fetches a single position by its UID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByUID(ctx context.Context, uid string) (*model.Position, error) {
	var pos model.Position
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "PositionRepository",
			"op":   "FindByUID",
			"uid":  uid,
		}).WithError(err).Error("Failed to fetch position")
		return nil, err
	}
	return &pos, nil
}

// FindActive returns every position still in active status, oldest entry
// first.
func (r *PositionRepository) FindActive(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusActive).
		Order("entry_timestamp ASC, id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "PositionRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to list active positions")
		return nil, err
	}
	return positions, nil
}

// List returns positions newest first, optionally filtered by status.
func (r *PositionRepository) List(ctx context.Context, status string) ([]model.Position, error) {
	q := r.db.WithContext(ctx).Order("entry_timestamp DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var positions []model.Position
	if err := q.Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// Save persists every field of an already-loaded position.
func (r *PositionRepository) Save(ctx context.Context, pos *model.Position) error {
	if err := r.db.WithContext(ctx).Save(pos).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo": "PositionRepository",
			"op":   "Save",
			"uid":  pos.UID,
		}).WithError(err).Error("Failed to save position")
		return err
	}
	return nil
}
