package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantish/rangemaker/internal/domain"
)

// PositionService defines the methods the position handler requires.
type PositionService interface {
	ListPositions(ctx context.Context, marketID, user string) ([]domain.Position, error)
	ListTrades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// PositionHandler serves position and trade history endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

// ListPositions returns positions for a market and/or user.
// GET /api/positions?market_id=...&user=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	marketID := q.Get("market_id")
	user := q.Get("user")

	if marketID == "" && user == "" {
		writeError(w, http.StatusBadRequest, "market_id or user query parameter required")
		return
	}

	positions, err := h.positions.ListPositions(r.Context(), marketID, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// ListTrades returns the fill history for a market.
// GET /api/trades?market_id=...&limit=50&offset=0
func (h *PositionHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("market_id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "market_id query parameter required")
		return
	}

	trades, err := h.positions.ListTrades(r.Context(), marketID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("market", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
