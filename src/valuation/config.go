package valuation

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// MaxRateStaleness bounds how old a forward-filled rate may be before the
	// substitution is flagged stale in the audit trail. The calculation still
	// proceeds; missing data is never fatal.
	MaxRateStaleness time.Duration `envconfig:"VALUATION_MAX_RATE_STALENESS" default:"72h"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
