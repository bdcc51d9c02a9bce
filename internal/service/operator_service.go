package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/risk"
)

// lockTTL bounds how long an operator mutation may hold a market's
// cluster-wide lock before it expires on its own.
const lockTTL = 30 * time.Second

// OperatorService is the admin control surface: liquidity changes,
// recalibration, pause/resume and state checks. Mutations take a
// cluster-wide lock when a LockManager is configured and every action lands
// in the audit log when an AuditStore is configured.
type OperatorService struct {
	markets *MarketService
	risk    *risk.Controller
	locks   domain.LockManager
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewOperatorService creates an OperatorService. Locks and audit may be nil.
func NewOperatorService(markets *MarketService, riskCtl *risk.Controller, locks domain.LockManager, audit domain.AuditStore, logger *slog.Logger) *OperatorService {
	return &OperatorService{
		markets: markets,
		risk:    riskCtl,
		locks:   locks,
		audit:   audit,
		logger:  logger.With(slog.String("component", "operator")),
	}
}

// SetLiquidity changes a market's b parameter, repricing the whole book.
func (s *OperatorService) SetLiquidity(ctx context.Context, marketID string, b float64) error {
	m, err := s.markets.Market(marketID)
	if err != nil {
		return err
	}
	unlock, err := s.acquire(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.SetLiquidity(ctx, b); err != nil {
		return fmt.Errorf("operator_service: set liquidity on %s: %w", marketID, err)
	}
	s.markets.publishPrices(ctx, m.Snapshot())
	s.record(ctx, "liquidity_changed", map[string]any{"market": marketID, "b": b})
	s.logger.InfoContext(ctx, "operator_service: liquidity changed",
		slog.String("market", marketID),
		slog.Float64("b", b),
	)
	return nil
}

// Recalibrate blends the market's holdings toward a fresh prior with weight w.
// It is also the recovery path for a market flagged unhealthy by CheckState.
func (s *OperatorService) Recalibrate(ctx context.Context, marketID string, prior []float64, weight float64) error {
	m, err := s.markets.Market(marketID)
	if err != nil {
		return err
	}
	unlock, err := s.acquire(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.Recalibrate(ctx, prior, weight); err != nil {
		return fmt.Errorf("operator_service: recalibrate %s: %w", marketID, err)
	}
	s.markets.publishPrices(ctx, m.Snapshot())
	s.record(ctx, "market_recalibrated", map[string]any{"market": marketID, "weight": weight})
	s.logger.InfoContext(ctx, "operator_service: market recalibrated",
		slog.String("market", marketID),
		slog.Float64("weight", weight),
	)
	return nil
}

// Pause halts all trading with a reason; in-flight commits finish first.
func (s *OperatorService) Pause(ctx context.Context, reason string) {
	s.risk.Pause(reason)
	s.record(ctx, "trading_paused", map[string]any{"reason": reason, "by": "operator"})
}

// Resume lifts a pause, whether operator- or loss-limit-initiated.
func (s *OperatorService) Resume(ctx context.Context) {
	s.risk.Resume()
	s.record(ctx, "trading_resumed", map[string]any{"by": "operator"})
}

// Status reports the pause flag, its reason and per-market net cash.
func (s *OperatorService) Status(ctx context.Context, marketID string) (paused bool, reason string, netCash float64) {
	paused, reason = s.risk.Paused()
	netCash = s.risk.NetCash(marketID)
	return paused, reason, netCash
}

// CheckState verifies a market's internal consistency. An error here means
// the market needs recalibration before further trading.
func (s *OperatorService) CheckState(ctx context.Context, marketID string) error {
	m, err := s.markets.Market(marketID)
	if err != nil {
		return err
	}
	if err := m.CheckState(ctx); err != nil {
		s.record(ctx, "market_unhealthy", map[string]any{"market": marketID, "error": err.Error()})
		return fmt.Errorf("operator_service: check %s: %w", marketID, err)
	}
	return nil
}

// acquire takes the per-market operator lock, or a no-op unlock when no
// LockManager is configured.
func (s *OperatorService) acquire(ctx context.Context, marketID string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "operator:"+marketID, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("operator_service: lock %s: %w", marketID, err)
	}
	return unlock, nil
}

func (s *OperatorService) record(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "operator_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
