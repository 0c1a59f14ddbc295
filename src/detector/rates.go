package detector

import (
	"context"

	"yieldlooper/src/model"
)

// RateReader is the slice of the market rate repository the detector needs.
type RateReader interface {
	LatestRate(ctx context.Context, token, venue string) (*model.MarketRate, error)
}

// StoredPrices serves prices from the most recently ingested market rates.
// Used when no live stream is attached, scan-on-request from the API.
type StoredPrices struct {
	rates RateReader
}

func NewStoredPrices(rates RateReader) *StoredPrices {
	return &StoredPrices{rates: rates}
}

func (s *StoredPrices) LatestPrice(ctx context.Context, token, venue string) (float64, bool) {
	rate, err := s.rates.LatestRate(ctx, token, venue)
	if err != nil || rate == nil || rate.Price <= 0 {
		return 0, false
	}
	return rate.Price, true
}
