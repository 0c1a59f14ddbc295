package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/detector"
	"yieldlooper/src/repository"
)

type flagScanner interface {
	Scan(ctx context.Context) ([]detector.Flag, error)
}

// RebalanceFlagsHandler runs a detector pass over the active positions and
// returns the flagged legs. The response is always a JSON array, empty when
// nothing drifted.
func RebalanceFlagsHandler(scanner flagScanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flags, err := scanner.Scan(r.Context())
		if err != nil {
			logger.WithError(err).Error("detector scan failed")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if flags == nil {
			flags = []detector.Flag{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(flags); err != nil {
			logger.WithError(err).Error("failed to encode flags")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// DefaultRebalanceFlagsHandler scans against the latest ingested rates.
func DefaultRebalanceFlagsHandler() http.HandlerFunc {
	config := detector.GetConfig()
	det := detector.New(
		repository.NewPositionRepository(),
		detector.NewStoredPrices(repository.NewMarketRateRepository()),
		config.DriftThreshold,
	)
	return RebalanceFlagsHandler(det)
}
