package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
)

// fakeOrders is an in-test OrderService with canned responses.
type fakeOrders struct {
	submitted  []domain.Order
	result     domain.OrderResult
	submitErr  error
	cancelErr  error
	listOrders []domain.Order
}

func (f *fakeOrders) Submit(_ context.Context, order domain.Order) (domain.OrderResult, error) {
	f.submitted = append(f.submitted, order)
	return f.result, f.submitErr
}

func (f *fakeOrders) Quote(context.Context, domain.Order) (float64, float64, error) {
	return 3.35, 0.335, nil
}

func (f *fakeOrders) Cancel(context.Context, string) error { return f.cancelErr }

func (f *fakeOrders) ListOrders(context.Context, string, string, domain.ListOpts) ([]domain.Order, error) {
	return f.listOrders, nil
}

func newOrderMux(f *fakeOrders) *http.ServeMux {
	h := NewOrderHandler(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("POST /api/orders/quote", h.QuoteOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.CancelOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPlaceOrder(t *testing.T) {
	f := &fakeOrders{result: domain.OrderResult{
		OrderID:    "o1",
		Status:     domain.OrderStatusFilled,
		FilledSize: 10,
		Payment:    3.35,
	}}
	mux := newOrderMux(f)

	rec := postJSON(t, mux, "/api/orders", `{
		"market_id": "val-2026",
		"user": "alice",
		"contract": "bucket",
		"target_value": 50,
		"size": 10
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var result domain.OrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.OrderStatusFilled, result.Status)

	// Defaults were applied before the service saw the order.
	require.Len(t, f.submitted, 1)
	assert.Equal(t, domain.OrderKindMarket, f.submitted[0].Kind)
	assert.Equal(t, domain.OrderSideBuy, f.submitted[0].Side)
}

func TestPlaceOrderRejectionIsCreated(t *testing.T) {
	// A rejected order is still a terminal result, not a transport error.
	f := &fakeOrders{result: domain.OrderResult{
		Status: domain.OrderStatusRejected,
		Reason: domain.RejectSlippageExceeded,
	}}
	mux := newOrderMux(f)

	rec := postJSON(t, mux, "/api/orders", `{"market_id":"m","user":"alice","size":5}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "slippage_exceeded")
}

func TestPlaceOrderValidation(t *testing.T) {
	mux := newOrderMux(&fakeOrders{})

	cases := []struct {
		name string
		body string
	}{
		{"missing user", `{"market_id":"m","size":5}`},
		{"zero size", `{"market_id":"m","user":"alice","size":0}`},
		{"bad kind", `{"market_id":"m","user":"alice","size":5,"kind":"iceberg"}`},
		{"bad side", `{"market_id":"m","user":"alice","size":5,"side":"hold"}`},
		{"bad contract", `{"market_id":"m","user":"alice","size":5,"contract":"spread"}`},
		{"limit without price", `{"market_id":"m","user":"alice","size":5,"kind":"limit"}`},
		{"stop without price", `{"market_id":"m","user":"alice","size":5,"kind":"stop"}`},
		{"not json", `{{{`},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, mux, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	f := &fakeOrders{submitErr: domain.ErrRateLimited}
	mux := newOrderMux(f)
	rec := postJSON(t, mux, "/api/orders", `{"market_id":"m","user":"alice","size":5}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	f.submitErr = domain.ErrNotFound
	rec = postJSON(t, mux, "/api/orders", `{"market_id":"m","user":"alice","size":5}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuoteOrder(t *testing.T) {
	mux := newOrderMux(&fakeOrders{})

	rec := postJSON(t, mux, "/api/orders/quote", `{"market_id":"m","user":"alice","size":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3.35, body["payment"])
	assert.Equal(t, 0.335, body["avg_price"])
}

func TestCancelOrder(t *testing.T) {
	f := &fakeOrders{}
	mux := newOrderMux(f)

	req := httptest.NewRequest(http.MethodDelete, "/api/orders/o1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.cancelErr = domain.ErrNotCancellable
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/orders/o1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.cancelErr = domain.ErrNotFound
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/orders/o1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersRequiresFilter(t *testing.T) {
	mux := newOrderMux(&fakeOrders{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders?market_id=m", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orders":[]}`, rec.Body.String())
}
