package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"yieldlooper/cmd/perprates"
	"yieldlooper/src/connectors"
	"yieldlooper/src/database"
	"yieldlooper/src/detector"
	"yieldlooper/src/executors"
	"yieldlooper/src/repository"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Yieldlooper CMD"
	app.Usage = "The Yieldlooper command line interface"

	app.Commands = []cli.Command{
		detectorCMD,
		perpRatesCMD,
		rateSyncCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	detectorCMD = cli.Command{
		Name:        "detector",
		Usage:       "run rebalance detector",
		Action:      detectorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run rebalance detector CMD`,
	}
	perpRatesCMD = cli.Command{
		Name:        "perp_rates",
		Usage:       "run perp rates ingestion",
		Action:      perpRatesAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run perp rates ingestion CMD`,
	}
	rateSyncCMD = cli.Command{
		Name:        "rate_sync",
		Usage:       "run rates feed sync",
		Action:      rateSyncAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run rates feed sync CMD`,
	}
)

// detectorAction runs the drift detector loop until interrupted.
func detectorAction(_ *cli.Context) error {

	logrus.Info("Starting detector CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := func(_ context.Context, flags []detector.Flag) {
		logrus.WithField("flags", len(flags)).Info("Scan flagged positions for rebalance")
	}

	err := executors.StartDetectorLoop(ctx, sink)
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// perpRatesAction will go fetch spot and perp tickers and store the basis.
func perpRatesAction(_ *cli.Context) error {

	logrus.Info("Starting perp rates CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	_perp := &perprates.PerpRates{
		Log: logrus.WithField("cmd", "perp_rates"),
		DB:  database.MainDB,
	}

	err := _perp.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting perp rates cmd")
		return err
	}

	return nil
}

// rateSyncAction pulls one batch from the lending rates feed into the DB.
func rateSyncAction(_ *cli.Context) error {

	logrus.Info("Starting rate sync CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	config := connectors.GetConfig()
	client := connectors.NewRatesFeedClient(config.RatesFeedBaseURL, config.RatesFeedTimeout)

	written, err := client.Sync(context.Background(),
		repository.NewMarketRateRepository(),
		repository.NewBasisRepository(),
	)
	if err != nil {
		logrus.WithError(err).Error("Starting rate sync cmd")
		return err
	}

	logrus.WithField("written", written).Info("Rates feed sync finished")
	return nil
}
