// Package risk enforces the engine's pre-trade checks and post-trade
// liability tracking: exposure caps, position limits, balance checks, the
// volatility circuit breaker and the realized-loss pause.
//
// Every check is a pure decision against current state plus the proposed
// trade; a rejection never mutates anything.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/engine"
)

// Notifier receives operator alerts for breaker trips and pauses. The notify
// package implements it; a nil notifier disables alerting.
type Notifier interface {
	Alert(ctx context.Context, event, message string)
}

// Config holds the tunable risk parameters.
type Config struct {
	// MaxBucketShares is Δq_max: the per-trade cap on |delta_k| in the
	// dominant bucket. Zero disables the cap.
	MaxBucketShares float64
	// MaxPositionShares caps a user's resulting |position| in any bucket.
	// Zero disables the limit.
	MaxPositionShares float64
	// SpreadMult widens quoted payments while the breaker is tripped.
	SpreadMult float64
	// LiquidityScale inflates the effective b while the breaker is tripped.
	LiquidityScale float64
	// BreakerThreshold is the relative price move that trips the breaker.
	BreakerThreshold float64
	// BreakerWindow is the rolling observation window.
	BreakerWindow time.Duration
	// BreakerCooldown keeps the breaker tripped after the last trip.
	BreakerCooldown time.Duration
	// MaxRealizedLoss pauses trading when the AMM's net cash falls below
	// -MaxRealizedLoss. Zero disables the pause.
	MaxRealizedLoss float64
}

// Defaults returns the standard risk configuration.
func Defaults() Config {
	return Config{
		MaxBucketShares:   0,
		MaxPositionShares: 0,
		SpreadMult:        1.25,
		LiquidityScale:    1.5,
		BreakerThreshold:  0.20,
		BreakerWindow:     time.Hour,
		BreakerCooldown:   15 * time.Minute,
	}
}

// Controller implements engine.Authorizer. One controller serves all markets;
// breaker and liability state is tracked per market, the pause flag is global.
type Controller struct {
	cfg      Config
	wallet   domain.Wallet
	tracker  *Tracker
	notifier Notifier
	logger   *slog.Logger

	mu           sync.Mutex
	paused       bool
	pauseReason  string
	netCash      map[string]float64
	trippedUntil map[string]time.Time
}

// NewController creates a Controller. The wallet is consulted for balance
// checks on buys; pass nil to skip them (tests, evidence trades).
func NewController(cfg Config, wallet domain.Wallet, notifier Notifier, logger *slog.Logger) *Controller {
	if cfg.BreakerWindow <= 0 {
		cfg.BreakerWindow = time.Hour
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 15 * time.Minute
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 0.20
	}
	return &Controller{
		cfg:          cfg,
		wallet:       wallet,
		tracker:      NewTracker(cfg.BreakerWindow),
		notifier:     notifier,
		logger:       logger.With(slog.String("component", "risk")),
		netCash:      make(map[string]float64),
		trippedUntil: make(map[string]time.Time),
	}
}

// Limits reports the trade-shaping parameters for the market: the exposure
// cap always, spread widening and liquidity inflation only while the
// circuit breaker is tripped.
func (c *Controller) Limits(marketID string) engine.Limits {
	l := engine.Limits{MaxBucketShares: c.cfg.MaxBucketShares}
	if c.Tripped(marketID) {
		l.SpreadMult = c.cfg.SpreadMult
		l.LiquidityScale = c.cfg.LiquidityScale
	}
	return l
}

// Authorize runs the pre-commit checks against a fully priced trade.
func (c *Controller) Authorize(ctx context.Context, req engine.AuthRequest) error {
	c.mu.Lock()
	paused, reason := c.paused, c.pauseReason
	c.mu.Unlock()
	if paused {
		return fmt.Errorf("risk: %s: %w", reason, domain.ErrTradingPaused)
	}

	// The engine clips to the cap before pricing; anything beyond it here
	// means a caller bypassed the clip.
	if c.cfg.MaxBucketShares > 0 {
		for _, d := range req.Delta {
			if math.Abs(d) > c.cfg.MaxBucketShares*(1+1e-9) {
				return engine.Reject(domain.RejectExposureCapExceeded,
					fmt.Sprintf("risk: delta %.4f exceeds per-trade cap %.4f", d, c.cfg.MaxBucketShares))
			}
		}
	}

	if c.cfg.MaxPositionShares > 0 {
		for k := range req.Delta {
			next := req.Positions[k] + req.Delta[k]
			if math.Abs(next) > c.cfg.MaxPositionShares {
				return engine.Reject(domain.RejectPositionLimitExceeded,
					fmt.Sprintf("risk: bucket %d position %.4f exceeds limit %.4f", k, next, c.cfg.MaxPositionShares))
			}
		}
	}

	// Balance check on buys; the read is the wallet's, the decision is ours.
	if req.Payment > 0 && c.wallet != nil && req.User != "" {
		balance, err := c.wallet.GetBalance(ctx, req.User)
		if err != nil {
			return fmt.Errorf("risk: balance lookup for %s: %w", req.User, err)
		}
		if balance < req.Payment {
			return fmt.Errorf("risk: balance %.4f below payment %.4f: %w", balance, req.Payment, domain.ErrInsufficientFunds)
		}
	}

	return nil
}

// RecordFill observes a committed trade: updates the rolling price window,
// trips the breaker on excessive moves, accumulates liability and pauses
// trading when the realized loss limit is breached.
func (c *Controller) RecordFill(marketID string, payment float64, prices []float64, ts time.Time) {
	c.tracker.Record(marketID, prices, ts)

	move, bucket := c.tracker.MaxRelativeMove(marketID)
	if move > c.cfg.BreakerThreshold {
		c.trip(marketID, move, bucket, ts)
	}

	c.mu.Lock()
	c.netCash[marketID] += payment
	cash := c.netCash[marketID]
	shouldPause := c.cfg.MaxRealizedLoss > 0 && cash < -c.cfg.MaxRealizedLoss && !c.paused
	if shouldPause {
		c.paused = true
		c.pauseReason = fmt.Sprintf("realized loss %.2f exceeds limit %.2f on %s", -cash, c.cfg.MaxRealizedLoss, marketID)
	}
	reason := c.pauseReason
	c.mu.Unlock()

	if shouldPause {
		c.logger.Error("risk: trading paused", slog.String("reason", reason))
		c.alert("trading_paused", reason)
	}
}

// trip marks the breaker tripped until the cooldown elapses.
func (c *Controller) trip(marketID string, move float64, bucket int, ts time.Time) {
	until := ts.Add(c.cfg.BreakerCooldown)

	c.mu.Lock()
	already := time.Now().Before(c.trippedUntil[marketID])
	c.trippedUntil[marketID] = until
	c.mu.Unlock()

	if already {
		return
	}
	msg := fmt.Sprintf("price moved %.1f%% in bucket %d of %s within the window", move*100, bucket, marketID)
	c.logger.Warn("risk: circuit breaker tripped",
		slog.String("market", marketID),
		slog.Float64("move", move),
		slog.Int("bucket", bucket),
	)
	c.alert("circuit_breaker_tripped", msg)
}

// Tripped reports whether the market's breaker is currently tripped.
func (c *Controller) Tripped(marketID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.trippedUntil[marketID])
}

// Pause stops all trading until Resume. Subsequent Authorize calls reject
// with TradingPaused.
func (c *Controller) Pause(reason string) {
	c.mu.Lock()
	c.paused = true
	c.pauseReason = reason
	c.mu.Unlock()
	c.logger.Warn("risk: trading paused by operator", slog.String("reason", reason))
}

// Resume clears the pause flag and the pause reason.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.paused = false
	c.pauseReason = ""
	c.mu.Unlock()
	c.logger.Info("risk: trading resumed")
}

// Paused reports the pause flag and its reason.
func (c *Controller) Paused() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused, c.pauseReason
}

// NetCash returns the cumulative signed cash collected by the AMM for the
// market since seeding.
func (c *Controller) NetCash(marketID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.netCash[marketID]
}

func (c *Controller) alert(event, msg string) {
	if c.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.notifier.Alert(ctx, event, msg)
}

// Compile-time interface check.
var _ engine.Authorizer = (*Controller)(nil)
