package detector

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// DriftThreshold is the liquidation-distance erosion that flags a
	// position, expressed as an absolute fraction.
	DriftThreshold float64       `envconfig:"DETECTOR_DRIFT_THRESHOLD" default:"0.02"`
	LoopPeriod     time.Duration `envconfig:"DETECTOR_LOOP_PERIOD" default:"60s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
