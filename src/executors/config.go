package executors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// UsePriceStream attaches the websocket feed when a PRICE_STREAM_URL is
	// configured; otherwise scans use the latest ingested rates.
	UsePriceStream bool `envconfig:"DETECTOR_USE_PRICE_STREAM" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
