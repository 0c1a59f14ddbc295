package perprates

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"yieldlooper/src/model"
	"yieldlooper/src/repository"
	"yieldlooper/src/utils"
)

// PerpRates pulls one spot and one perp ticker and persists the prices plus
// the spot/perp basis spread. Funding APRs arrive through the rates feed;
// this command only keeps prices and basis coverage fresh.
type PerpRates struct {
	Log    *logger.Entry
	DB     *gorm.DB
	Config *Config

	spotExchange goex.API
	perpExchange goex.API
}

func (p *PerpRates) Start() error {
	if p.Config == nil {
		p.Config = GetConfig()
	}
	if p.spotExchange == nil {
		p.spotExchange = newBinanceInstance(binance.GLOBAL_API_BASE_URL)
	}
	if p.perpExchange == nil {
		endpoint := p.Config.PerpEndpoint
		if endpoint == "" {
			endpoint = binance.GLOBAL_API_BASE_URL
		}
		p.perpExchange = newBinanceInstance(endpoint)
	}

	return p.ingestOnce(context.Background())
}

func newBinanceInstance(endpoint string) *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   endpoint,
	}
	return binance.NewWithConfig(apiConfig)
}

func (p *PerpRates) ingestOnce(ctx context.Context) error {
	pair := goex.NewCurrencyPair(
		goex.Currency{Symbol: p.Config.Symbol},
		goex.Currency{Symbol: p.Config.Quote},
	)

	spotTicker, err := p.spotExchange.GetTicker(pair)
	if err != nil {
		p.Log.WithError(err).Error("Failed to fetch spot ticker")
		return err
	}
	perpTicker, err := p.perpExchange.GetTicker(pair)
	if err != nil {
		p.Log.WithError(err).Error("Failed to fetch perp ticker")
		return err
	}
	if spotTicker.Last <= 0 || perpTicker.Last <= 0 {
		return errors.New("ticker returned non-positive price")
	}

	now := utils.BucketTimestamp(time.Now().Unix(), "minute")
	rateRep := repository.NewMarketRateRepository().WithDB(p.DB)
	basisRep := repository.NewBasisRepository().WithDB(p.DB)

	spotRate := &model.MarketRate{
		Token:     p.Config.Symbol,
		Venue:     p.Config.SpotVenue,
		Timestamp: now,
		Price:     spotTicker.Last,
	}
	if err := rateRep.Upsert(ctx, spotRate); err != nil {
		return err
	}

	perpRate := &model.MarketRate{
		Token:     p.Config.PerpSymbol(),
		Venue:     p.Config.PerpVenue,
		Timestamp: now,
		Price:     perpTicker.Last,
	}
	if err := rateRep.Upsert(ctx, perpRate); err != nil {
		return err
	}

	spread := basisSpread(spotTicker.Last, perpTicker.Last)
	sample := &model.BasisSample{
		PerpSymbol:   p.Config.PerpSymbol(),
		SpotContract: p.Config.SpotContract,
		Timestamp:    now,
		Spread:       spread,
	}
	if err := basisRep.Upsert(ctx, sample); err != nil {
		return err
	}

	p.Log.WithFields(logger.Fields{
		"symbol":     p.Config.Symbol,
		"spot_price": spotTicker.Last,
		"perp_price": perpTicker.Last,
		"spread":     spread,
	}).Info("Perp market data inserted or updated in database")
	return nil
}

// basisSpread is (perp - spot) / spot, computed in decimal to avoid noise on
// near-zero spreads.
func basisSpread(spot, perp float64) float64 {
	spotD := decimal.NewFromFloat(spot)
	if spotD.IsZero() {
		return 0
	}
	perpD := decimal.NewFromFloat(perp)
	return perpD.Sub(spotD).Div(spotD).InexactFloat64()
}
