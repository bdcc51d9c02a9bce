package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantish/rangemaker/internal/domain"
)

// OperatorService defines the admin methods the operator handler requires.
type OperatorService interface {
	SetLiquidity(ctx context.Context, marketID string, b float64) error
	Recalibrate(ctx context.Context, marketID string, prior []float64, weight float64) error
	Pause(ctx context.Context, reason string)
	Resume(ctx context.Context)
	Status(ctx context.Context, marketID string) (paused bool, reason string, netCash float64)
	CheckState(ctx context.Context, marketID string) error
}

// EvidenceService applies belief updates to a market.
type EvidenceService interface {
	ApplyEvidence(ctx context.Context, marketID string, pYes, pNo []float64, confidence float64) (float64, error)
}

// OperatorHandler serves the admin control endpoints. These routes sit behind
// the API key middleware; there is no per-user authorization layer.
type OperatorHandler struct {
	ops      OperatorService
	evidence EvidenceService
	logger   *slog.Logger
}

// NewOperatorHandler creates an OperatorHandler.
func NewOperatorHandler(ops OperatorService, evidence EvidenceService, logger *slog.Logger) *OperatorHandler {
	return &OperatorHandler{ops: ops, evidence: evidence, logger: logger}
}

// SetLiquidity updates a market's b parameter.
// PUT /api/operator/markets/{id}/liquidity
func (h *OperatorHandler) SetLiquidity(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req struct {
		B float64 `json:"b"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.B <= 0 {
		writeError(w, http.StatusBadRequest, "b must be positive")
		return
	}

	if err := h.ops.SetLiquidity(r.Context(), id, req.B); err != nil {
		h.writeOpError(w, r, "set liquidity", id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "b": req.B})
}

// Recalibrate blends a market toward a fresh prior.
// POST /api/operator/markets/{id}/recalibrate
func (h *OperatorHandler) Recalibrate(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req struct {
		Prior  []float64 `json:"prior"`
		Weight float64   `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.ops.Recalibrate(r.Context(), id, req.Prior, req.Weight); err != nil {
		if errors.Is(err, domain.ErrInvalidPrior) || errors.Is(err, domain.ErrDomain) || errors.Is(err, domain.ErrShape) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeOpError(w, r, "recalibrate", id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "status": "recalibrated"})
}

// ApplyEvidence shifts a market's beliefs from an evidence observation.
// POST /api/operator/markets/{id}/evidence
func (h *OperatorHandler) ApplyEvidence(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req struct {
		PYes       []float64 `json:"p_yes"`
		PNo        []float64 `json:"p_no"`
		Confidence float64   `json:"confidence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	payment, err := h.evidence.ApplyEvidence(r.Context(), id, req.PYes, req.PNo, req.Confidence)
	if err != nil {
		if errors.Is(err, domain.ErrDomain) || errors.Is(err, domain.ErrShape) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeOpError(w, r, "apply evidence", id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"payment":   payment,
	})
}

// Pause halts all trading.
// POST /api/operator/pause
func (h *OperatorHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "operator pause"
	}
	h.ops.Pause(r.Context(), req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// Resume lifts a trading pause.
// POST /api/operator/resume
func (h *OperatorHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.ops.Resume(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// Status reports the pause flag and per-market liability.
// GET /api/operator/markets/{id}/status
func (h *OperatorHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	paused, reason, netCash := h.ops.Status(r.Context(), id)

	healthy := true
	if err := h.ops.CheckState(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		healthy = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":    id,
		"paused":       paused,
		"pause_reason": reason,
		"net_cash":     netCash,
		"healthy":      healthy,
	})
}

func (h *OperatorHandler) writeOpError(w http.ResponseWriter, r *http.Request, action, marketID string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	if errors.Is(err, domain.ErrLockHeld) {
		writeError(w, http.StatusConflict, "another operator action is in progress")
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: operator action failed",
		slog.String("action", action),
		slog.String("market", marketID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "operator action failed")
}
