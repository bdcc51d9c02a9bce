package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantish/rangemaker/internal/server"
	"github.com/quantish/rangemaker/internal/server/handler"
	"github.com/quantish/rangemaker/internal/server/ws"
	"github.com/quantish/rangemaker/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown after the context is
// cancelled.
const shutdownTimeout = 10 * time.Second

// serve starts the long-running components (WebSocket hub, ledger archiver,
// HTTP server) and blocks until the context is cancelled or one of them
// fails.
func (a *App) serve(ctx context.Context, deps *Dependencies, markets *service.MarketService, ops *service.OperatorService) error {
	g, ctx := errgroup.WithContext(ctx)
	running := false

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error { return hub.Run(ctx) })
		running = true
	}

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
		running = true
	}

	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Markets:   handler.NewMarketHandler(markets, a.logger),
			Orders:    handler.NewOrderHandler(markets, a.logger),
			Positions: handler.NewPositionHandler(markets, a.logger),
			Operator:  handler.NewOperatorHandler(ops, markets, a.logger),
		}
		srv := server.NewServer(server.Config{
			Port:              a.cfg.Server.Port,
			CORSOrigins:       a.cfg.Server.CORSOrigins,
			APIKey:            a.cfg.Server.APIKey,
			RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
		}, handlers, hub, deps.RateLimiter, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown failed", "error", err)
			}
			return ctx.Err()
		})
		running = true
	}

	if !running {
		// Nothing to serve; hold until cancelled so the process stays up.
		<-ctx.Done()
		return ctx.Err()
	}

	return g.Wait()
}
