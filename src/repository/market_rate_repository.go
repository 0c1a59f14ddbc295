package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"yieldlooper/src/database"
	"yieldlooper/src/model"
	"yieldlooper/src/valuation"
)

// MarketRateRepository reads and writes market rate snapshots. It implements
// valuation.RateSource.
type MarketRateRepository struct {
	db *gorm.DB
}

// NewMarketRateRepository creates a new repository instance using the main
// read/write database.
func NewMarketRateRepository() *MarketRateRepository {
	return &MarketRateRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *MarketRateRepository) WithDB(db *gorm.DB) *MarketRateRepository {
	return &MarketRateRepository{db: db}
}

// Upsert inserts a snapshot, updating in place when the (token, venue,
// timestamp) row already exists. Used by the ingestion commands.
func (r *MarketRateRepository) Upsert(ctx context.Context, rate *model.MarketRate) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}, {Name: "venue"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"lend_apr_base", "lend_apr_reward", "borrow_apr_base", "borrow_apr_reward",
			"price", "collateral_ratio", "liq_threshold", "borrow_fee", "borrow_weight",
			"available_liquidity",
		}),
	}).Create(rate).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":  "MarketRateRepository",
			"op":    "Upsert",
			"token": rate.Token,
			"venue": rate.Venue,
		}).WithError(err).Error("Failed to upsert market rate")
		return err
	}
	return nil
}

// DistinctTimestamps returns the sorted distinct timestamps with any data for
// the given keys in [start, end].
func (r *MarketRateRepository) DistinctTimestamps(ctx context.Context, keys []valuation.RateKey, start, end int64) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pairs := make([][]interface{}, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, []interface{}{key.Token, key.Venue})
	}

	var stamps []int64
	err := r.db.WithContext(ctx).
		Model(&model.MarketRate{}).
		Distinct("timestamp").
		Where("(token, venue) IN ?", pairs).
		Where("timestamp >= ? AND timestamp <= ?", start, end).
		Order("timestamp").
		Pluck("timestamp", &stamps).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "MarketRateRepository",
			"op":   "DistinctTimestamps",
		}).WithError(err).Error("Failed to gather rate timestamps")
		return nil, err
	}
	return stamps, nil
}

// LatestRateBefore returns the newest snapshot for the key at or before ts.
// Returns (nil, nil) when the series has no data yet.
func (r *MarketRateRepository) LatestRateBefore(ctx context.Context, key valuation.RateKey, ts int64) (*model.MarketRate, error) {
	var rate model.MarketRate
	err := r.db.WithContext(ctx).
		Where("token = ? AND venue = ? AND timestamp <= ?", key.Token, key.Venue, ts).
		Order("timestamp DESC").
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":  "MarketRateRepository",
			"op":    "LatestRateBefore",
			"token": key.Token,
			"venue": key.Venue,
		}).WithError(err).Error("Failed to read market rate")
		return nil, err
	}
	return &rate, nil
}

// LatestRate returns the newest snapshot for a (token, venue) pair regardless
// of age, or (nil, nil) when none exists.
func (r *MarketRateRepository) LatestRate(ctx context.Context, token, venue string) (*model.MarketRate, error) {
	var rate model.MarketRate
	err := r.db.WithContext(ctx).
		Where("token = ? AND venue = ?", token, venue).
		Order("timestamp DESC").
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}
