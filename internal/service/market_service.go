// Package service exposes the engine's caller-facing contract: quoting,
// order submission, state reads and the operator control surface. Services
// orchestrate; all market math and state ownership stays in the engine.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/engine"
	"github.com/quantish/rangemaker/internal/lmsr"
	"github.com/quantish/rangemaker/internal/risk"
)

// MarketServiceConfig holds service-level tunables.
type MarketServiceConfig struct {
	// SubmitTimeout bounds how long a submission may wait for the market's
	// writer lock before being rejected Busy.
	SubmitTimeout time.Duration
	// OrdersPerSecond caps per-user submissions; zero disables limiting.
	OrdersPerSecond int
}

// MarketService is the exposed trading API over a set of markets.
// Persistence and messaging dependencies are optional: a nil store or bus
// simply skips that concern (local/test mode).
type MarketService struct {
	cfg       MarketServiceConfig
	risk      *risk.Controller
	wallet    domain.Wallet
	orders    domain.OrderStore
	trades    domain.TradeStore
	positions domain.PositionStore
	prices    domain.PriceCache
	bus       domain.SignalBus
	limiter   domain.RateLimiter
	logger    *slog.Logger

	mu      sync.RWMutex
	markets map[string]*engine.Market
}

// NewMarketService creates a MarketService.
func NewMarketService(
	cfg MarketServiceConfig,
	riskCtl *risk.Controller,
	wallet domain.Wallet,
	logger *slog.Logger,
) *MarketService {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 2 * time.Second
	}
	return &MarketService{
		cfg:     cfg,
		risk:    riskCtl,
		wallet:  wallet,
		logger:  logger,
		markets: make(map[string]*engine.Market),
	}
}

// WithStores attaches persistence stores. Without them the service runs in
// memory only.
func (s *MarketService) WithStores(orders domain.OrderStore, trades domain.TradeStore, positions domain.PositionStore) *MarketService {
	s.orders = orders
	s.trades = trades
	s.positions = positions
	return s
}

// WithMessaging attaches the price cache, signal bus and rate limiter.
func (s *MarketService) WithMessaging(prices domain.PriceCache, bus domain.SignalBus, limiter domain.RateLimiter) *MarketService {
	s.prices = prices
	s.bus = bus
	s.limiter = limiter
	return s
}

// CreateMarket builds and registers a market, then publishes its seed prices.
func (s *MarketService) CreateMarket(ctx context.Context, cfg engine.Config) (*engine.Market, error) {
	m, err := engine.NewMarket(cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("market_service: create %s: %w", cfg.MarketID, err)
	}

	s.mu.Lock()
	if _, exists := s.markets[cfg.MarketID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("market_service: market %s already registered: %w", cfg.MarketID, domain.ErrConfig)
	}
	s.markets[cfg.MarketID] = m
	s.mu.Unlock()

	s.publishPrices(ctx, m.Snapshot())
	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market", cfg.MarketID),
		slog.Int("buckets", len(m.Snapshot().Buckets)),
		slog.Float64("b", m.Snapshot().B),
	)
	return m, nil
}

// Market returns a registered market.
func (s *MarketService) Market(marketID string) (*engine.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[marketID]
	if !ok {
		return nil, fmt.Errorf("market_service: market %s: %w", marketID, domain.ErrNotFound)
	}
	return m, nil
}

// Quote returns the payment estimate for an order without touching state.
func (s *MarketService) Quote(ctx context.Context, order domain.Order) (payment, avgPrice float64, err error) {
	m, err := s.Market(order.MarketID)
	if err != nil {
		return 0, 0, err
	}
	return m.QuoteOrder(order, s.risk.Limits(order.MarketID))
}

// Submit runs an order to a terminal state and persists the outcome.
func (s *MarketService) Submit(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	m, err := s.Market(order.MarketID)
	if err != nil {
		return domain.OrderResult{}, err
	}

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.Status = domain.OrderStatusPending
	order.CreatedAt = time.Now().UTC()

	if s.limiter != nil && s.cfg.OrdersPerSecond > 0 {
		allowed, limitErr := s.limiter.Allow(ctx, "orders:"+order.User, s.cfg.OrdersPerSecond, time.Second)
		if limitErr != nil {
			return domain.OrderResult{}, fmt.Errorf("market_service: rate limiter: %w", limitErr)
		}
		if !allowed {
			return domain.OrderResult{
				OrderID:       order.ID,
				Status:        domain.OrderStatusRejected,
				RequestedSize: order.Size,
				Reason:        domain.RejectBusy,
			}, domain.ErrRateLimited
		}
	}

	if s.orders != nil {
		if storeErr := s.orders.Create(ctx, order); storeErr != nil {
			return domain.OrderResult{}, fmt.Errorf("market_service: persist order: %w", storeErr)
		}
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()
	result := m.SubmitOrder(submitCtx, order, s.risk, s.wallet)

	s.recordOutcome(ctx, m, order, result)
	return result, nil
}

// recordOutcome persists the terminal status, the fill (if any) and the
// updated prices, then fans the event out on the bus. Persistence failures
// are logged, not surfaced: the commit already happened.
func (s *MarketService) recordOutcome(ctx context.Context, m *engine.Market, order domain.Order, result domain.OrderResult) {
	if s.orders != nil {
		if err := s.orders.UpdateStatus(ctx, order.ID, result.Status); err != nil {
			s.logger.WarnContext(ctx, "market_service: update order status failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if result.Status != domain.OrderStatusFilled && result.Status != domain.OrderStatusPartiallyFilled {
		s.logger.InfoContext(ctx, "market_service: order rejected",
			slog.String("order_id", order.ID),
			slog.String("market", order.MarketID),
			slog.String("reason", string(result.Reason)),
		)
		return
	}

	trade := domain.Trade{
		ID:         uuid.New().String(),
		MarketID:   order.MarketID,
		OrderID:    order.ID,
		User:       order.User,
		Side:       order.Side,
		Size:       result.FilledSize,
		Payment:    result.Payment,
		AvgPrice:   result.AvgPrice,
		ExecutedAt: time.Now().UTC(),
	}
	if s.trades != nil {
		if err := s.trades.Insert(ctx, trade); err != nil {
			s.logger.WarnContext(ctx, "market_service: persist trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.positions != nil {
		if rows, posErr := m.Positions(ctx); posErr == nil {
			if err := s.positions.ReplaceMarket(ctx, order.MarketID, rows); err != nil {
				s.logger.WarnContext(ctx, "market_service: persist positions failed",
					slog.String("market", order.MarketID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	snap := m.Snapshot()
	s.publishPrices(ctx, snap)
	s.publishEvent(ctx, "trades", map[string]any{
		"event":     "trade_filled",
		"trade_id":  trade.ID,
		"order_id":  order.ID,
		"market":    order.MarketID,
		"side":      string(order.Side),
		"size":      result.FilledSize,
		"payment":   result.Payment,
		"avg_price": result.AvgPrice,
	})

	s.logger.InfoContext(ctx, "market_service: order filled",
		slog.String("order_id", order.ID),
		slog.String("market", order.MarketID),
		slog.String("status", string(result.Status)),
		slog.Float64("filled", result.FilledSize),
		slog.Float64("payment", result.Payment),
	)
}

// Cancel moves a still-pending persisted order to Cancelled. Orders are
// evaluated at submission, so this only applies before evaluation begins;
// terminal orders return ErrNotCancellable.
func (s *MarketService) Cancel(ctx context.Context, orderID string) error {
	if s.orders == nil {
		return fmt.Errorf("market_service: cancel %s: %w", orderID, domain.ErrNotFound)
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("market_service: cancel %s: %w", orderID, err)
	}
	if order.Status.Terminal() {
		return fmt.Errorf("market_service: cancel %s in state %s: %w", orderID, order.Status, domain.ErrNotCancellable)
	}
	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled); err != nil {
		return fmt.Errorf("market_service: cancel %s: %w", orderID, err)
	}
	s.publishEvent(ctx, "orders", map[string]any{
		"event":    "order_cancelled",
		"order_id": orderID,
	})
	return nil
}

// GetPrices returns the current derived price vector.
func (s *MarketService) GetPrices(ctx context.Context, marketID string) ([]float64, error) {
	m, err := s.Market(marketID)
	if err != nil {
		return nil, err
	}
	return m.Snapshot().Prices, nil
}

// GetState returns the full consistent snapshot.
func (s *MarketService) GetState(ctx context.Context, marketID string) (*domain.MarketState, error) {
	m, err := s.Market(marketID)
	if err != nil {
		return nil, err
	}
	return m.Snapshot(), nil
}

// BidAsk returns per-bucket mid/bid/ask quotes from the latest snapshot.
func (s *MarketService) BidAsk(ctx context.Context, marketID string) ([]domain.BucketQuote, error) {
	m, err := s.Market(marketID)
	if err != nil {
		return nil, err
	}
	snap := m.Snapshot()
	quotes, err := lmsr.BidAsk(snap.Q, snap.B)
	if err != nil {
		return nil, fmt.Errorf("market_service: bid/ask for %s: %w", marketID, err)
	}
	for i := range quotes {
		quotes[i].Bucket = snap.Buckets[i]
	}
	return quotes, nil
}

// Scenario fits the implied distribution to the latest price vector and
// returns exceedance probabilities for the given threshold value. Read-only:
// nothing is committed.
func (s *MarketService) Scenario(ctx context.Context, marketID string, threshold float64) (engine.Scenario, error) {
	m, err := s.Market(marketID)
	if err != nil {
		return engine.Scenario{}, err
	}
	snap := m.Snapshot()
	sc, err := engine.ImpliedScenario(snap.Buckets, snap.Prices, threshold, engine.DefaultScenarioDelta)
	if err != nil {
		return engine.Scenario{}, fmt.Errorf("market_service: scenario for %s: %w", marketID, err)
	}
	return sc, nil
}

// ApplyEvidence shifts a market's beliefs through the standard commit path
// and publishes the resulting prices.
func (s *MarketService) ApplyEvidence(ctx context.Context, marketID string, pYes, pNo []float64, confidence float64) (float64, error) {
	m, err := s.Market(marketID)
	if err != nil {
		return 0, err
	}
	payment, err := m.ApplyEvidence(ctx, pYes, pNo, confidence, engine.DefaultEvidenceBoost)
	if err != nil {
		return 0, fmt.Errorf("market_service: evidence on %s: %w", marketID, err)
	}

	snap := m.Snapshot()
	s.publishPrices(ctx, snap)
	s.publishEvent(ctx, "evidence", map[string]any{
		"event":      "evidence_applied",
		"market":     marketID,
		"confidence": confidence,
		"payment":    payment,
	})
	return payment, nil
}

// ListOrders returns persisted orders for a market or user. Without an order
// store there is no history to list.
func (s *MarketService) ListOrders(ctx context.Context, marketID, user string, opts domain.ListOpts) ([]domain.Order, error) {
	if s.orders == nil {
		return nil, nil
	}
	if marketID != "" {
		return s.orders.ListByMarket(ctx, marketID, opts)
	}
	return s.orders.ListByUser(ctx, user, opts)
}

// ListTrades returns persisted fills for a market.
func (s *MarketService) ListTrades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	if s.trades == nil {
		return nil, nil
	}
	return s.trades.ListByMarket(ctx, marketID, opts)
}

// ListPositions returns the live position rows for a market or, for a user,
// the persisted rows across markets.
func (s *MarketService) ListPositions(ctx context.Context, marketID, user string) ([]domain.Position, error) {
	if marketID != "" {
		m, err := s.Market(marketID)
		if err != nil {
			return nil, err
		}
		rows, err := m.Positions(ctx)
		if err != nil {
			return nil, err
		}
		if user == "" {
			return rows, nil
		}
		var filtered []domain.Position
		for _, p := range rows {
			if p.User == user {
				filtered = append(filtered, p)
			}
		}
		return filtered, nil
	}
	if s.positions == nil {
		return nil, nil
	}
	return s.positions.ListByUser(ctx, user)
}

// publishPrices caches the latest price vector for read-heavy consumers.
func (s *MarketService) publishPrices(ctx context.Context, snap *domain.MarketState) {
	if s.prices == nil {
		return
	}
	if err := s.prices.SetVector(ctx, snap.MarketID, snap.Prices, snap.AsOf); err != nil {
		s.logger.WarnContext(ctx, "market_service: price cache update failed",
			slog.String("market", snap.MarketID),
			slog.String("error", err.Error()),
		)
	}
	s.publishEvent(ctx, "prices", map[string]any{
		"event":   "prices_updated",
		"market":  snap.MarketID,
		"prices":  snap.Prices,
		"version": snap.Version,
	})
}

func (s *MarketService) publishEvent(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
