package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/engine"
)

// MarketService defines the read-side methods the market handler requires.
type MarketService interface {
	GetState(ctx context.Context, marketID string) (*domain.MarketState, error)
	GetPrices(ctx context.Context, marketID string) ([]float64, error)
	BidAsk(ctx context.Context, marketID string) ([]domain.BucketQuote, error)
	Scenario(ctx context.Context, marketID string, threshold float64) (engine.Scenario, error)
}

// MarketHandler serves market state and pricing endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// GetState returns the full snapshot: buckets, share vector, prices, version.
// GET /api/markets/{id}
func (h *MarketHandler) GetState(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	state, err := h.markets.GetState(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market state failed",
			slog.String("market", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load market state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetPrices returns just the derived probability vector.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	prices, err := h.markets.GetPrices(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get prices failed",
			slog.String("market", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load prices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"prices":    prices,
	})
}

// GetScenario returns implied-distribution exceedance probabilities for a
// threshold value.
// GET /api/markets/{id}/scenario?threshold=...
func (h *MarketHandler) GetScenario(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	threshold, err := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64)
	if err != nil || threshold <= 0 {
		writeError(w, http.StatusBadRequest, "threshold query parameter must be a positive number")
		return
	}

	sc, err := h.markets.Scenario(r.Context(), id, threshold)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		if errors.Is(err, domain.ErrDomain) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get scenario failed",
			slog.String("market", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute scenario")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"scenario":  sc,
	})
}

// GetBidAsk returns per-bucket mid/bid/ask quotes.
// GET /api/markets/{id}/bidask
func (h *MarketHandler) GetBidAsk(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	quotes, err := h.markets.BidAsk(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get bid/ask failed",
			slog.String("market", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load quotes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"quotes":    quotes,
	})
}
