package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantish/rangemaker/internal/domain"
)

// OrderService defines the methods the order handler requires from the
// service layer.
type OrderService interface {
	Submit(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	Quote(ctx context.Context, order domain.Order) (payment, avgPrice float64, err error)
	Cancel(ctx context.Context, orderID string) error
	ListOrders(ctx context.Context, marketID, user string, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves order submission and query endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// orderRequest is the JSON body for order submission and quoting.
type orderRequest struct {
	MarketID    string  `json:"market_id"`
	User        string  `json:"user"`
	Kind        string  `json:"kind"`
	Side        string  `json:"side"`
	Contract    string  `json:"contract"`
	TargetValue float64 `json:"target_value"`
	Size        float64 `json:"size"`
	LimitPrice  float64 `json:"limit_price,omitempty"`
	StopPrice   float64 `json:"stop_price,omitempty"`
}

func (req orderRequest) toOrder() (domain.Order, string) {
	if req.MarketID == "" || req.User == "" {
		return domain.Order{}, "market_id and user are required"
	}
	if req.Size <= 0 {
		return domain.Order{}, "size must be positive"
	}

	order := domain.Order{
		MarketID:    req.MarketID,
		User:        req.User,
		Kind:        domain.OrderKind(req.Kind),
		Side:        domain.OrderSide(req.Side),
		Contract:    domain.ContractKind(req.Contract),
		TargetValue: req.TargetValue,
		Size:        req.Size,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
	}
	if order.Kind == "" {
		order.Kind = domain.OrderKindMarket
	}
	if order.Side == "" {
		order.Side = domain.OrderSideBuy
	}
	if order.Contract == "" {
		order.Contract = domain.ContractBucket
	}

	switch order.Kind {
	case domain.OrderKindMarket, domain.OrderKindLimit, domain.OrderKindStop:
	default:
		return domain.Order{}, "kind must be market, limit or stop"
	}
	switch order.Side {
	case domain.OrderSideBuy, domain.OrderSideSell:
	default:
		return domain.Order{}, "side must be buy or sell"
	}
	switch order.Contract {
	case domain.ContractBucket, domain.ContractAbove, domain.ContractBelow:
	default:
		return domain.Order{}, "contract must be bucket, above or below"
	}
	if order.Kind == domain.OrderKindLimit && order.LimitPrice <= 0 {
		return domain.Order{}, "limit orders require a positive limit_price"
	}
	if order.Kind == domain.OrderKindStop && order.StopPrice <= 0 {
		return domain.Order{}, "stop orders require a positive stop_price"
	}
	return order, ""
}

// PlaceOrder submits an order and returns its terminal result.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	order, msg := req.toOrder()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.orders.Submit(r.Context(), order)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: place order failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place order")
		return
	}

	// Rejections are valid terminal outcomes, not transport errors.
	writeJSON(w, http.StatusCreated, result)
}

// QuoteOrder prices an order against the current snapshot without executing.
// POST /api/orders/quote
func (h *OrderHandler) QuoteOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	order, msg := req.toOrder()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	payment, avgPrice, err := h.orders.Quote(r.Context(), order)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: quote order failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to quote order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": order.MarketID,
		"payment":   payment,
		"avg_price": avgPrice,
	})
}

// CancelOrder cancels a still-pending order by its ID.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if err := h.orders.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		if errors.Is(err, domain.ErrNotCancellable) {
			writeError(w, http.StatusConflict, "order already in a terminal state")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}

// ListOrders returns orders for a market or a user.
// GET /api/orders?market_id=...&user=...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	marketID := q.Get("market_id")
	user := q.Get("user")

	if marketID == "" && user == "" {
		writeError(w, http.StatusBadRequest, "market_id or user query parameter required")
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), marketID, user, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}
