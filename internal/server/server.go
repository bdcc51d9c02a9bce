// Package server exposes the pricing engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/server/handler"
	"github.com/quantish/rangemaker/internal/server/middleware"
	"github.com/quantish/rangemaker/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RequestsPerSecond caps per-IP request rates when a RateLimiter is
	// provided; zero disables the middleware.
	RequestsPerSecond int
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
	Operator  *handler.OperatorHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered, wires the middleware
// chain (rate limiting, auth, logging, CORS) and attaches the WebSocket hub.
// The limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required once the chain short-circuits on key).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market reads.
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetState)
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/bidask", handlers.Markets.GetBidAsk)
	mux.HandleFunc("GET /api/markets/{id}/scenario", handlers.Markets.GetScenario)

	// Orders.
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("POST /api/orders/quote", handlers.Orders.QuoteOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)

	// Positions and trade history.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/trades", handlers.Positions.ListTrades)

	// Operator controls.
	mux.HandleFunc("PUT /api/operator/markets/{id}/liquidity", handlers.Operator.SetLiquidity)
	mux.HandleFunc("POST /api/operator/markets/{id}/recalibrate", handlers.Operator.Recalibrate)
	mux.HandleFunc("POST /api/operator/markets/{id}/evidence", handlers.Operator.ApplyEvidence)
	mux.HandleFunc("GET /api/operator/markets/{id}/status", handlers.Operator.Status)
	mux.HandleFunc("POST /api/operator/pause", handlers.Operator.Pause)
	mux.HandleFunc("POST /api/operator/resume", handlers.Operator.Resume)

	// WebSocket stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RequestsPerSecond > 0 {
		h = middleware.RateLimit(limiter, cfg.RequestsPerSecond, time.Second)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
