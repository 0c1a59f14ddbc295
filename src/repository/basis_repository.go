package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"yieldlooper/src/database"
	"yieldlooper/src/model"
)

// BasisRepository stores spot/perp spread samples. Coverage is optional and
// sparse; a missing sample is an answer, not an error.
type BasisRepository struct {
	db *gorm.DB
}

func NewBasisRepository() *BasisRepository {
	return &BasisRepository{db: database.MainDB}
}

func (r *BasisRepository) WithDB(db *gorm.DB) *BasisRepository {
	return &BasisRepository{db: db}
}

func (r *BasisRepository) Upsert(ctx context.Context, sample *model.BasisSample) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "perp_symbol"}, {Name: "spot_contract"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{"spread"}),
	}).Create(sample).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":        "BasisRepository",
			"op":          "Upsert",
			"perp_symbol": sample.PerpSymbol,
		}).WithError(err).Error("Failed to upsert basis sample")
	}
	return err
}

// LatestBefore returns the newest sample at or before ts for the pair, or
// (nil, nil) when none exists.
func (r *BasisRepository) LatestBefore(ctx context.Context, perpSymbol, spotContract string, ts int64) (*model.BasisSample, error) {
	var sample model.BasisSample
	err := r.db.WithContext(ctx).
		Where("perp_symbol = ? AND spot_contract = ? AND timestamp <= ?", perpSymbol, spotContract, ts).
		Order("timestamp DESC").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}
