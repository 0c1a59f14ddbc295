package perprates

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbol string `envconfig:"PERP_BASE_SYMBOL" default:"SOL"`
	Quote  string `envconfig:"PERP_QUOTE" default:"USDT"`

	SpotVenue string `envconfig:"PERP_SPOT_VENUE" default:"binance"`
	PerpVenue string `envconfig:"PERP_VENUE" default:"binance-perp"`

	// SpotContract keys the basis sample; defaults to the base symbol.
	SpotContract string `envconfig:"PERP_SPOT_CONTRACT"`

	// PerpEndpoint overrides the ticker endpoint for the perp leg. Empty
	// falls back to the global spot endpoint.
	PerpEndpoint string `envconfig:"PERP_ENDPOINT"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	if config.SpotContract == "" {
		config.SpotContract = config.Symbol
	}
	return &config
}

// PerpSymbol is the token key perp market rates are stored under.
func (c *Config) PerpSymbol() string {
	return c.Symbol + "-PERP"
}
