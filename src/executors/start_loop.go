package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/connectors"
	"yieldlooper/src/detector"
	"yieldlooper/src/repository"
)

// FlagSink receives the flags of each completed scan pass. Scans with no
// flags still invoke the sink with an empty slice.
type FlagSink func(ctx context.Context, flags []detector.Flag)

// Injection points for tests.
var (
	newPositionSource = func() detector.PositionSource { return repository.NewPositionRepository() }
	newStoredPrices   = func() detector.PriceSource {
		return detector.NewStoredPrices(repository.NewMarketRateRepository())
	}
)

// StartDetectorLoop runs periodic rebalance-need scans until the context is
// cancelled. It only flags; acting on a flag is the scheduler's job.
func StartDetectorLoop(ctx context.Context, sink FlagSink) error {
	config := GetConfig()
	detCfg := detector.GetConfig()
	connCfg := connectors.GetConfig()

	ticker := time.NewTicker(detCfg.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	prices := newStoredPrices()
	if config.UsePriceStream && connCfg.PriceStreamURL != "" {
		stream := connectors.NewPriceStream(connCfg.PriceStreamURL)
		go func() {
			if err := stream.Run(ctx); err != nil {
				logger.WithError(err).Error("Price stream stopped")
			}
		}()
		prices = stream
	}

	det := detector.New(newPositionSource(), prices, detCfg.DriftThreshold)

	logger.WithFields(logger.Fields{
		"period":    detCfg.LoopPeriod,
		"threshold": detCfg.DriftThreshold,
	}).Info("Detector loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil

		case <-ticker.C:
			logger.Info("loop tick")
			flags, err := det.Scan(ctx)
			if err != nil {
				logger.WithError(err).Error("Detector scan failed, will retry next tick")
				continue
			}
			if sink != nil {
				sink(ctx, flags)
			}
		}
	}
}
