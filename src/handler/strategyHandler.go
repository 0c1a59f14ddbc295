package handler

import (
	"encoding/json"
	"math"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/model"
	"yieldlooper/src/strategy"
)

type analyzeRequest struct {
	// Archetype restricts analysis to one variant; empty runs all of them.
	Archetype string `json:"archetype,omitempty"`

	Leg1A *model.MarketQuote `json:"leg_1a,omitempty"`
	Leg2A *model.MarketQuote `json:"leg_2a,omitempty"`
	Leg2B *model.MarketQuote `json:"leg_2b,omitempty"`
	Leg3B *model.MarketQuote `json:"leg_3b,omitempty"`

	Basis *model.BasisSample `json:"basis,omitempty"`

	MinLiquidationDistance float64 `json:"min_liquidation_distance"`
	PerpTakerFee           float64 `json:"perp_taker_fee"`
}

func (req *analyzeRequest) inputs() strategy.Inputs {
	return strategy.Inputs{
		Leg1A:                  req.Leg1A,
		Leg2A:                  req.Leg2A,
		Leg2B:                  req.Leg2B,
		Leg3B:                  req.Leg3B,
		Basis:                  req.Basis,
		MinLiquidationDistance: req.MinLiquidationDistance,
		PerpTakerFee:           req.PerpTakerFee,
	}
}

// strategyResultView mirrors StrategyResult with unbounded values nulled so
// the payload is always valid JSON.
type strategyResultView struct {
	model.StrategyResult
	DaysToBreakeven     *float64 `json:"days_to_breakeven"`
	LiquidationDistance *float64 `json:"liquidation_distance"`
	MaxDeployableUSD    *float64 `json:"max_deployable_usd"`
}

func viewOf(result *model.StrategyResult) strategyResultView {
	return strategyResultView{
		StrategyResult:      *result,
		DaysToBreakeven:     finiteOrNil(result.DaysToBreakeven),
		LiquidationDistance: finiteOrNil(result.LiquidationDistance),
		MaxDeployableUSD:    finiteOrNil(result.MaxDeployableUSD),
	}
}

func finiteOrNil(f float64) *float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// AnalyzeStrategiesHandler runs the requested calculator, or all of them,
// over one set of quotes. Invalid inputs come back as valid=false results,
// never errors; only a malformed payload is a 400.
func AnalyzeStrategiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			logger.WithError(err).Warn("invalid analyze payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		tags := strategy.Archetypes()
		if req.Archetype != "" {
			if _, err := strategy.ForArchetype(model.Archetype(req.Archetype)); err != nil {
				http.Error(w, "unknown archetype", http.StatusBadRequest)
				return
			}
			tags = []model.Archetype{model.Archetype(req.Archetype)}
		}

		in := req.inputs()
		results := make([]strategyResultView, 0, len(tags))
		for _, tag := range tags {
			calc, err := strategy.ForArchetype(tag)
			if err != nil {
				continue
			}
			results = append(results, viewOf(calc.Analyze(in)))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(results); err != nil {
			logger.WithError(err).Error("failed to encode analyze response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// ListArchetypesHandler returns the registered strategy tags.
func ListArchetypesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(strategy.Archetypes()); err != nil {
			logger.WithError(err).Error("failed to encode archetype list")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}
