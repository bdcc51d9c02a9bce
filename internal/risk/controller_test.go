package risk

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/engine"
	"github.com/quantish/rangemaker/internal/wallet"
)

// stubNotifier records alerts synchronously.
type stubNotifier struct {
	mu     sync.Mutex
	events []string
}

func (s *stubNotifier) Alert(_ context.Context, event, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *stubNotifier) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(cfg Config, w domain.Wallet, n Notifier) *Controller {
	return NewController(cfg, w, n, testLogger())
}

func TestAuthorizeClean(t *testing.T) {
	c := newController(Defaults(), nil, nil)

	err := c.Authorize(context.Background(), engine.AuthRequest{
		MarketID:  "m",
		User:      "alice",
		Delta:     []float64{5, 0, 0},
		Payment:   2.5,
		Positions: []float64{0, 0, 0},
	})
	assert.NoError(t, err)
}

func TestAuthorizePaused(t *testing.T) {
	c := newController(Defaults(), nil, nil)
	c.Pause("maintenance")

	err := c.Authorize(context.Background(), engine.AuthRequest{MarketID: "m"})
	assert.ErrorIs(t, err, domain.ErrTradingPaused)

	paused, reason := c.Paused()
	assert.True(t, paused)
	assert.Equal(t, "maintenance", reason)

	c.Resume()
	assert.NoError(t, c.Authorize(context.Background(), engine.AuthRequest{MarketID: "m"}))
}

func TestAuthorizePositionLimit(t *testing.T) {
	cfg := Defaults()
	cfg.MaxPositionShares = 100
	c := newController(cfg, nil, nil)

	err := c.Authorize(context.Background(), engine.AuthRequest{
		MarketID:  "m",
		User:      "alice",
		Delta:     []float64{30, 0},
		Positions: []float64{80, 0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position")

	// Selling down an oversized position is still allowed.
	err = c.Authorize(context.Background(), engine.AuthRequest{
		MarketID:  "m",
		User:      "alice",
		Delta:     []float64{-30, 0},
		Positions: []float64{120, 0},
	})
	assert.NoError(t, err)
}

func TestAuthorizeExposureCap(t *testing.T) {
	cfg := Defaults()
	cfg.MaxBucketShares = 10
	c := newController(cfg, nil, nil)

	err := c.Authorize(context.Background(), engine.AuthRequest{
		MarketID:  "m",
		Delta:     []float64{15, 0},
		Positions: []float64{0, 0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap")
}

func TestAuthorizeBalanceCheck(t *testing.T) {
	w := wallet.NewMemory()
	require.NoError(t, w.Credit(context.Background(), "alice", 10, "funding"))
	c := newController(Defaults(), w, nil)

	req := engine.AuthRequest{
		MarketID:  "m",
		User:      "alice",
		Delta:     []float64{5},
		Payment:   25,
		Positions: []float64{0},
	}
	assert.ErrorIs(t, c.Authorize(context.Background(), req), domain.ErrInsufficientFunds)

	req.Payment = 5
	assert.NoError(t, c.Authorize(context.Background(), req))

	// Sells never consult the balance.
	req.Payment = -100
	assert.NoError(t, c.Authorize(context.Background(), req))
}

func TestBreakerTripsOnLargeMove(t *testing.T) {
	notifier := &stubNotifier{}
	cfg := Defaults()
	cfg.BreakerThreshold = 0.20
	c := newController(cfg, nil, notifier)
	now := time.Now()

	c.RecordFill("m", 1, []float64{0.50, 0.50}, now)
	assert.False(t, c.Tripped("m"))
	assert.Zero(t, c.Limits("m").SpreadMult)

	// 60% relative move in bucket 0 trips the breaker.
	c.RecordFill("m", 1, []float64{0.20, 0.80}, now.Add(time.Minute))
	assert.True(t, c.Tripped("m"))
	assert.Equal(t, []string{"circuit_breaker_tripped"}, notifier.seen())

	limits := c.Limits("m")
	assert.Equal(t, cfg.SpreadMult, limits.SpreadMult)
	assert.Equal(t, cfg.LiquidityScale, limits.LiquidityScale)

	// Other markets are unaffected.
	assert.False(t, c.Tripped("other"))

	// A repeat trip inside the cooldown does not re-alert.
	c.RecordFill("m", 1, []float64{0.05, 0.95}, now.Add(2*time.Minute))
	assert.Len(t, notifier.seen(), 1)
}

func TestSmallMovesDoNotTrip(t *testing.T) {
	c := newController(Defaults(), nil, nil)
	now := time.Now()

	c.RecordFill("m", 1, []float64{0.50, 0.50}, now)
	c.RecordFill("m", 1, []float64{0.55, 0.45}, now.Add(time.Minute))
	assert.False(t, c.Tripped("m"))
}

func TestRealizedLossPause(t *testing.T) {
	notifier := &stubNotifier{}
	cfg := Defaults()
	cfg.MaxRealizedLoss = 100
	c := newController(cfg, nil, notifier)
	now := time.Now()

	c.RecordFill("m", -60, []float64{0.5, 0.5}, now)
	paused, _ := c.Paused()
	assert.False(t, paused)

	c.RecordFill("m", -60, []float64{0.5, 0.5}, now.Add(time.Second))
	paused, reason := c.Paused()
	assert.True(t, paused)
	assert.Contains(t, reason, "realized loss")
	assert.Contains(t, notifier.seen(), "trading_paused")
	assert.InDelta(t, -120, c.NetCash("m"), 1e-12)

	assert.ErrorIs(t, c.Authorize(context.Background(), engine.AuthRequest{MarketID: "m"}), domain.ErrTradingPaused)
}
