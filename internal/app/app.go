// Package app provides the top-level application lifecycle management for the
// range market maker. It wires together all dependencies (stores, caches,
// blob storage, services and notifications), seeds the configured markets and
// runs the API server until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantish/rangemaker/internal/config"
	"github.com/quantish/rangemaker/internal/risk"
	"github.com/quantish/rangemaker/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, builds the services,
// creates the configured markets, and blocks serving requests until the
// context is cancelled. On return the caller should invoke Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	riskCtl := risk.NewController(risk.Config{
		MaxBucketShares:   a.cfg.Risk.MaxBucketShares,
		MaxPositionShares: a.cfg.Risk.MaxPositionShares,
		SpreadMult:        a.cfg.Risk.SpreadMult,
		LiquidityScale:    a.cfg.Risk.LiquidityScale,
		BreakerThreshold:  a.cfg.Risk.BreakerThreshold,
		BreakerWindow:     a.cfg.Risk.BreakerWindow.Duration,
		BreakerCooldown:   a.cfg.Risk.BreakerCooldown.Duration,
		MaxRealizedLoss:   a.cfg.Risk.MaxRealizedLoss,
	}, deps.Wallet, deps.Notifier, a.logger)

	markets := service.NewMarketService(service.MarketServiceConfig{
		SubmitTimeout:   a.cfg.Engine.SubmitTimeout.Duration,
		OrdersPerSecond: a.cfg.Engine.OrdersPerSecond,
	}, riskCtl, deps.Wallet, a.logger).
		WithStores(deps.OrderStore, deps.TradeStore, deps.PositionStore).
		WithMessaging(deps.PriceCache, deps.SignalBus, deps.RateLimiter)

	ops := service.NewOperatorService(markets, riskCtl, deps.LockManager, deps.AuditStore, a.logger)

	if err := a.createMarkets(ctx, markets); err != nil {
		return err
	}

	return a.serve(ctx, deps, markets, ops)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
