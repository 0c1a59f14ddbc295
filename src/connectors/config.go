package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RatesFeedBaseURL string        `envconfig:"RATES_FEED_BASE_URL" default:"http://localhost:8081"`
	RatesFeedTimeout time.Duration `envconfig:"RATES_FEED_TIMEOUT" default:"15s"`

	PriceStreamURL string `envconfig:"PRICE_STREAM_URL"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
