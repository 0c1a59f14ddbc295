package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"yieldlooper/src/lifecycle"
	"yieldlooper/src/model"
	"yieldlooper/src/repository"
	"yieldlooper/src/strategy"
	"yieldlooper/src/valuation"
)

type lifecycleEngine interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (*model.Position, error)
	Rebalance(ctx context.Context, uid string, liveTS int64, reason string) (*model.PositionRebalance, error)
	Close(ctx context.Context, uid string, closeTS int64, reason string) (*model.Position, error)
}

type positionReader interface {
	List(ctx context.Context, status string) ([]model.Position, error)
	FindByUID(ctx context.Context, uid string) (*model.Position, error)
}

type ledgerReader interface {
	ListByPosition(ctx context.Context, positionID uint) ([]model.PositionRebalance, error)
	SumRealizedPnl(ctx context.Context, positionID uint) (float64, error)
}

type positionValuer interface {
	CalculatePositionValue(ctx context.Context, pos *model.Position, startTS, endTS int64) (*valuation.Result, error)
}

type createPositionRequest struct {
	analyzeRequest

	DeploymentUSD  float64 `json:"deployment_usd"`
	EntryTimestamp int64   `json:"entry_timestamp"`
	Reason         string  `json:"reason,omitempty"`

	// Sizing overrides the calculator-derived weights when present.
	Sizing *model.Sizing `json:"sizing,omitempty"`
}

// CreatePositionHandler opens a position. Sizing defaults to the archetype
// calculator's output for the submitted quotes.
func CreatePositionHandler(engine lifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPositionRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			logger.WithError(err).Warn("invalid create position payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		if req.Archetype == "" {
			http.Error(w, "archetype is required", http.StatusBadRequest)
			return
		}

		calc, err := strategy.ForArchetype(model.Archetype(req.Archetype))
		if err != nil {
			http.Error(w, "unknown archetype", http.StatusBadRequest)
			return
		}

		in := req.inputs()
		sizing := model.Sizing{}
		if req.Sizing != nil {
			sizing = *req.Sizing
		} else {
			sizing, err = calc.CalculatePositions(in)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
		}

		pos, err := engine.Create(r.Context(), lifecycle.CreateRequest{
			Archetype:      model.Archetype(req.Archetype),
			DeploymentUSD:  req.DeploymentUSD,
			EntryTimestamp: req.EntryTimestamp,
			Sizing:         sizing,
			Quotes:         in,
			Reason:         req.Reason,
		})
		if err != nil {
			if errors.Is(err, lifecycle.ErrInvalidTimestamp) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.WithError(err).Error("failed to create position")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(pos); err != nil {
			logger.WithError(err).Error("failed to encode created position")
		}
	}
}

// ListPositionsHandler lists positions, optionally filtered by ?status=.
func ListPositionsHandler(repo positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "" && status != model.PositionStatusActive && status != model.PositionStatusClosed {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}

		positions, err := repo.List(r.Context(), status)
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(positions); err != nil {
			logger.WithError(err).Error("failed to encode position list")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// GetPositionHandler returns one position by uid.
func GetPositionHandler(repo positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := findPosition(w, r, repo)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(pos); err != nil {
			logger.WithError(err).Error("failed to encode position")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

type lifecycleActionRequest struct {
	Timestamp int64  `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// RebalancePositionHandler closes the current ledger segment and opens the
// next one at the submitted timestamp.
func RebalancePositionHandler(engine lifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")
		var req lifecycleActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		row, err := engine.Rebalance(r.Context(), uid, req.Timestamp, req.Reason)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(row); err != nil {
			logger.WithError(err).Error("failed to encode rebalance row")
		}
	}
}

// ClosePositionHandler flips the position to closed at the submitted
// timestamp.
func ClosePositionHandler(engine lifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")
		var req lifecycleActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		pos, err := engine.Close(r.Context(), uid, req.Timestamp, req.Reason)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(pos); err != nil {
			logger.WithError(err).Error("failed to encode closed position")
		}
	}
}

// PositionValueHandler computes earnings over [start, end]; start defaults to
// the entry timestamp, end to now.
func PositionValueHandler(repo positionReader, valuer positionValuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := findPosition(w, r, repo)
		if !ok {
			return
		}

		startTS := pos.EntryTimestamp
		if param := r.URL.Query().Get("start"); param != "" {
			parsed, err := strconv.ParseInt(param, 10, 64)
			if err != nil {
				http.Error(w, "invalid start", http.StatusBadRequest)
				return
			}
			startTS = parsed
		}

		endTS := time.Now().Unix()
		if param := r.URL.Query().Get("end"); param != "" {
			parsed, err := strconv.ParseInt(param, 10, 64)
			if err != nil {
				http.Error(w, "invalid end", http.StatusBadRequest)
				return
			}
			endTS = parsed
		}
		if pos.ClosedAt != nil && endTS > *pos.ClosedAt {
			endTS = *pos.ClosedAt
		}

		result, err := valuer.CalculatePositionValue(r.Context(), pos, startTS, endTS)
		if err != nil {
			logger.WithError(err).WithField("uid", pos.UID).Error("valuation failed")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.WithError(err).Error("failed to encode valuation result")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

type ledgerResponse struct {
	PositionUID string                    `json:"position_uid"`
	Rows        []model.PositionRebalance `json:"rows"`
	RealizedPnl float64                   `json:"realized_pnl"`
}

// PositionLedgerHandler returns the full rebalance history plus the summed
// realized pnl rebuilt from the rows.
func PositionLedgerHandler(repo positionReader, ledger ledgerReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := findPosition(w, r, repo)
		if !ok {
			return
		}

		rows, err := ledger.ListByPosition(r.Context(), pos.ID)
		if err != nil {
			logger.WithError(err).Error("failed to list ledger rows")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		sum, err := ledger.SumRealizedPnl(r.Context(), pos.ID)
		if err != nil {
			logger.WithError(err).Error("failed to sum realized pnl")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ledgerResponse{
			PositionUID: pos.UID,
			Rows:        rows,
			RealizedPnl: sum,
		}); err != nil {
			logger.WithError(err).Error("failed to encode ledger response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

func findPosition(w http.ResponseWriter, r *http.Request, repo positionReader) (*model.Position, bool) {
	uid := chi.URLParam(r, "uid")
	pos, err := repo.FindByUID(r.Context(), uid)
	if err != nil {
		logger.WithError(err).Error("failed to load position")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if pos == nil {
		http.Error(w, "position not found", http.StatusNotFound)
		return nil, false
	}
	return pos, true
}

func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrPositionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrInvalidTimestamp):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, lifecycle.ErrPositionNotActive),
		errors.Is(err, lifecycle.ErrStaleTimestamp):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.WithError(err).Error("lifecycle operation failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// DefaultCreatePositionHandler wires the handler to the production engine.
func DefaultCreatePositionHandler(engine *lifecycle.Engine) http.HandlerFunc {
	return CreatePositionHandler(engine)
}

// DefaultListPositionsHandler wires the handler to the production repository.
func DefaultListPositionsHandler() http.HandlerFunc {
	return ListPositionsHandler(repository.NewPositionRepository())
}
