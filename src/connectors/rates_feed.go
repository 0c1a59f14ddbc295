package connectors

// REST client for the lending-venue rates feed, resty with internal retry.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/model"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

type ratesFeedEntry struct {
	Token     string `json:"token"`
	Venue     string `json:"venue"`
	Timestamp int64  `json:"timestamp"`

	LendAPRBase     float64 `json:"lend_apr_base"`
	LendAPRReward   float64 `json:"lend_apr_reward"`
	BorrowAPRBase   float64 `json:"borrow_apr_base"`
	BorrowAPRReward float64 `json:"borrow_apr_reward"`

	Price              float64 `json:"price"`
	CollateralRatio    float64 `json:"collateral_ratio"`
	LiqThreshold       float64 `json:"liq_threshold"`
	BorrowFee          float64 `json:"borrow_fee"`
	BorrowWeight       float64 `json:"borrow_weight"`
	AvailableLiquidity float64 `json:"available_liquidity"`
}

type ratesFeedResponse struct {
	Rates []ratesFeedEntry `json:"rates"`
}

type basisFeedEntry struct {
	PerpSymbol   string  `json:"perp_symbol"`
	SpotContract string  `json:"spot_contract"`
	Timestamp    int64   `json:"timestamp"`
	Spread       float64 `json:"spread"`
}

type basisFeedResponse struct {
	Samples []basisFeedEntry `json:"samples"`
}

// RateWriter is the slice of the market rate repository the sync needs.
type RateWriter interface {
	Upsert(ctx context.Context, rate *model.MarketRate) error
}

// BasisWriter is the slice of the basis repository the sync needs.
type BasisWriter interface {
	Upsert(ctx context.Context, sample *model.BasisSample) error
}

type RatesFeedClient struct {
	baseURL string
	http    *resty.Client
}

func NewRatesFeedClient(baseURL string, timeout time.Duration) *RatesFeedClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = GetConfig().RatesFeedBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &RatesFeedClient{baseURL: baseURL, http: httpClient}
}

// FetchRates pulls the current market snapshots for every listed token.
func (c *RatesFeedClient) FetchRates(ctx context.Context) ([]model.MarketRate, error) {
	var out ratesFeedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/rates")
	if err != nil {
		return nil, fmt.Errorf("rates feed request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rates feed returned %d: %s", resp.StatusCode(), resp.String())
	}

	rates := make([]model.MarketRate, 0, len(out.Rates))
	for _, entry := range out.Rates {
		if entry.Token == "" || entry.Venue == "" || entry.Timestamp <= 0 {
			logger.WithFields(logger.Fields{
				"token": entry.Token,
				"venue": entry.Venue,
			}).Warn("Skipping malformed rates feed entry")
			continue
		}
		rates = append(rates, model.MarketRate{
			Token:              entry.Token,
			Venue:              entry.Venue,
			Timestamp:          entry.Timestamp,
			LendAPRBase:        entry.LendAPRBase,
			LendAPRReward:      entry.LendAPRReward,
			BorrowAPRBase:      entry.BorrowAPRBase,
			BorrowAPRReward:    entry.BorrowAPRReward,
			Price:              entry.Price,
			CollateralRatio:    entry.CollateralRatio,
			LiqThreshold:       entry.LiqThreshold,
			BorrowFee:          entry.BorrowFee,
			BorrowWeight:       entry.BorrowWeight,
			AvailableLiquidity: entry.AvailableLiquidity,
		})
	}
	return rates, nil
}

// FetchBasis pulls the spot/perp spread samples, when the feed serves them.
func (c *RatesFeedClient) FetchBasis(ctx context.Context) ([]model.BasisSample, error) {
	var out basisFeedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/basis")
	if err != nil {
		return nil, fmt.Errorf("basis feed request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("basis feed returned %d: %s", resp.StatusCode(), resp.String())
	}

	samples := make([]model.BasisSample, 0, len(out.Samples))
	for _, entry := range out.Samples {
		if entry.PerpSymbol == "" || entry.SpotContract == "" || entry.Timestamp <= 0 {
			continue
		}
		samples = append(samples, model.BasisSample{
			PerpSymbol:   entry.PerpSymbol,
			SpotContract: entry.SpotContract,
			Timestamp:    entry.Timestamp,
			Spread:       entry.Spread,
		})
	}
	return samples, nil
}

// Sync fetches and upserts one full pass of rates and basis samples.
// A basis endpoint failure is logged, not fatal; basis coverage is optional.
func (c *RatesFeedClient) Sync(ctx context.Context, rates RateWriter, basis BasisWriter) (int, error) {
	fetched, err := c.FetchRates(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range fetched {
		if err := rates.Upsert(ctx, &fetched[i]); err != nil {
			return written, fmt.Errorf("upsert rate %s/%s: %w", fetched[i].Token, fetched[i].Venue, err)
		}
		written++
	}

	if basis != nil {
		samples, err := c.FetchBasis(ctx)
		if err != nil {
			logger.WithError(err).Warn("Basis feed unavailable, skipping")
			return written, nil
		}
		for i := range samples {
			if err := basis.Upsert(ctx, &samples[i]); err != nil {
				return written, fmt.Errorf("upsert basis %s: %w", samples[i].PerpSymbol, err)
			}
			written++
		}
	}
	return written, nil
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}
