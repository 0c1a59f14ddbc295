package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/database"
	"yieldlooper/src/handler"
	"yieldlooper/src/lifecycle"
	"yieldlooper/src/repository"
	"yieldlooper/src/valuation"
)

// NewRouter builds the API routes on top of the production repositories and
// engines. Split from StartServer so tests can drive the router directly.
func NewRouter() chi.Router {
	rateRep := repository.NewMarketRateRepository()
	positionRep := repository.NewPositionRepository()
	ledgerRep := repository.NewRebalanceRepository()

	valuer := valuation.NewEngine(rateRep, valuation.GetConfig())
	engine := lifecycle.NewEngine(database.MainDB, valuer)

	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	r.Get("/strategies/archetypes", handler.ListArchetypesHandler())
	r.Post("/strategies/analyze", handler.AnalyzeStrategiesHandler())

	r.Route("/positions", func(r chi.Router) {
		r.Get("/", handler.ListPositionsHandler(positionRep))
		r.Post("/", handler.CreatePositionHandler(engine))
		r.Route("/{uid}", func(r chi.Router) {
			r.Get("/", handler.GetPositionHandler(positionRep))
			r.Post("/rebalance", handler.RebalancePositionHandler(engine))
			r.Post("/close", handler.ClosePositionHandler(engine))
			r.Get("/value", handler.PositionValueHandler(positionRep, valuer))
			r.Get("/ledger", handler.PositionLedgerHandler(positionRep, ledgerRep))
		})
	})

	r.Get("/rebalance-flags", handler.DefaultRebalanceFlagsHandler())

	return r
}

func StartServer(port string) {
	if port == "" {
		port = GetConfig().Port
	}
	r := NewRouter()

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
