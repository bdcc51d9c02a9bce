package engine

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/grid"
	"github.com/quantish/rangemaker/internal/wallet"
)

// stubAuth is a permissive Authorizer with pluggable limits and rejection.
type stubAuth struct {
	limits  Limits
	authErr error
	fills   int
}

func (a *stubAuth) Limits(string) Limits                             { return a.limits }
func (a *stubAuth) Authorize(context.Context, AuthRequest) error     { return a.authErr }
func (a *stubAuth) RecordFill(string, float64, []float64, time.Time) { a.fills++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMarket(t *testing.T, b float64) *Market {
	t.Helper()
	m, err := NewMarket(Config{
		MarketID: "val-2026",
		Grid:     grid.Config{Min: 0, Max: 300, Policy: grid.PolicyFixed, FixedWidth: 100},
		B:        b,
	}, testLogger())
	require.NoError(t, err)
	return m
}

func buyOrder(size float64) domain.Order {
	return domain.Order{
		ID:          "o1",
		MarketID:    "val-2026",
		User:        "alice",
		Kind:        domain.OrderKindMarket,
		Side:        domain.OrderSideBuy,
		Contract:    domain.ContractBucket,
		TargetValue: 50,
		Size:        size,
	}
}

func TestNewMarketUniformSeed(t *testing.T) {
	m := newTestMarket(t, 3000)
	snap := m.Snapshot()

	require.Len(t, snap.Q, 3)
	for _, q := range snap.Q {
		assert.InDelta(t, 3000*math.Log(1.0/3), q, 1e-9)
	}
	for _, p := range snap.Prices {
		assert.InDelta(t, 1.0/3, p, 1e-9)
	}
	assert.Zero(t, snap.NetCash)
	assert.Equal(t, uint64(1), snap.Version)
}

func TestNewMarketBankrollDerivedLiquidity(t *testing.T) {
	m, err := NewMarket(Config{
		MarketID: "m",
		Grid:     grid.Config{Min: 0, Max: 400, Policy: grid.PolicyFixed, FixedWidth: 100},
		Bankroll: 10_000,
	}, testLogger())
	require.NoError(t, err)
	assert.InDelta(t, 10_000/math.Log(4), m.Snapshot().B, 1e-9)
}

func TestNewMarketPriorMismatch(t *testing.T) {
	_, err := NewMarket(Config{
		MarketID: "m",
		Grid:     grid.Config{Min: 0, Max: 300, Policy: grid.PolicyFixed, FixedWidth: 100},
		B:        100,
		Prior:    []float64{0.5, 0.5},
	}, testLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidPrior)
}

func TestSubmitBuyMovesPrice(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}

	res := m.SubmitOrder(context.Background(), buyOrder(10), auth, nil)

	require.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.Equal(t, 10.0, res.FilledSize)
	assert.Greater(t, res.Payment, 0.0)
	assert.Equal(t, 1, auth.fills)

	snap := m.Snapshot()
	assert.Greater(t, snap.Prices[0], 1.0/3)
	assert.Less(t, snap.Prices[1], 1.0/3)
	assert.InDelta(t, res.Payment, snap.NetCash, 1e-12)
}

func TestRoundTripNetsToZero(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}
	ctx := context.Background()

	buy := m.SubmitOrder(ctx, buyOrder(25), auth, nil)
	require.Equal(t, domain.OrderStatusFilled, buy.Status)

	sell := buyOrder(25)
	sell.ID = "o2"
	sell.Side = domain.OrderSideSell
	res := m.SubmitOrder(ctx, sell, auth, nil)
	require.Equal(t, domain.OrderStatusFilled, res.Status)

	snap := m.Snapshot()
	assert.InDelta(t, 0, snap.NetCash, 1e-9)
	for _, p := range snap.Prices {
		assert.InDelta(t, 1.0/3, p, 1e-9)
	}

	// The buyer's position washed out entirely.
	positions, err := m.Positions(ctx)
	require.NoError(t, err)
	for _, pos := range positions {
		assert.InDelta(t, 0, pos.Shares, 1e-9)
	}
}

func TestQuoteOrderMatchesSubmit(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}
	order := buyOrder(10)

	quoted, avg, err := m.QuoteOrder(order, auth.Limits(m.ID()))
	require.NoError(t, err)

	res := m.SubmitOrder(context.Background(), order, auth, nil)
	require.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.InDelta(t, quoted, res.Payment, 1e-9)
	assert.InDelta(t, avg, res.AvgPrice, 1e-9)
}

func TestSubmitInvalidSize(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}

	for _, size := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		order := buyOrder(size)
		res := m.SubmitOrder(context.Background(), order, auth, nil)
		assert.Equal(t, domain.OrderStatusRejected, res.Status)
		assert.Equal(t, domain.RejectInvalidOrder, res.Reason)
	}
	assert.Zero(t, m.Snapshot().NetCash)
}

func TestLimitOrderSlippage(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}

	// A reference price far from the quote rejects without touching state.
	order := buyOrder(10)
	order.Kind = domain.OrderKindLimit
	order.LimitPrice = 0.90
	res := m.SubmitOrder(context.Background(), order, auth, nil)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectSlippageExceeded, res.Reason)
	assert.Zero(t, m.Snapshot().NetCash)

	// Quoting first and using that price fills.
	_, avg, err := m.QuoteOrder(buyOrder(10), Limits{})
	require.NoError(t, err)
	order.LimitPrice = avg
	res = m.SubmitOrder(context.Background(), order, auth, nil)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
}

func TestStopOrder(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}

	// Buy stops trigger at or above the stop price; 1/3 is well below 0.9.
	order := buyOrder(10)
	order.Kind = domain.OrderKindStop
	order.StopPrice = 0.90
	res := m.SubmitOrder(context.Background(), order, auth, nil)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectStopNotTriggered, res.Reason)

	// A stop just below the quoted price triggers and passes the slippage
	// check.
	_, avg, err := m.QuoteOrder(buyOrder(10), Limits{})
	require.NoError(t, err)
	order.StopPrice = avg * 0.995
	res = m.SubmitOrder(context.Background(), order, auth, nil)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
}

func TestPartialFillClip(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{limits: Limits{MaxBucketShares: 4}}

	res := m.SubmitOrder(context.Background(), buyOrder(10), auth, nil)

	require.Equal(t, domain.OrderStatusPartiallyFilled, res.Status)
	assert.Equal(t, 10.0, res.RequestedSize)
	assert.InDelta(t, 4.0, res.FilledSize, 1e-12)
}

func TestSpreadWidening(t *testing.T) {
	m := newTestMarket(t, 3000)
	order := buyOrder(10)

	base, _, err := m.QuoteOrder(order, Limits{})
	require.NoError(t, err)

	widened, _, err := m.QuoteOrder(order, Limits{SpreadMult: 1.25})
	require.NoError(t, err)
	assert.InDelta(t, base*1.25, widened, 1e-9)

	// Sell proceeds shrink rather than grow.
	sell := order
	sell.Side = domain.OrderSideSell
	baseSell, _, err := m.QuoteOrder(sell, Limits{})
	require.NoError(t, err)
	widenedSell, _, err := m.QuoteOrder(sell, Limits{SpreadMult: 1.25})
	require.NoError(t, err)
	assert.InDelta(t, baseSell/1.25, widenedSell, 1e-9)
}

func TestSubmitExtendsGrid(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}

	order := buyOrder(10)
	order.TargetValue = 450 // above the initial upper bound of 300
	res := m.SubmitOrder(context.Background(), order, auth, nil)

	require.Equal(t, domain.OrderStatusFilled, res.Status)
	snap := m.Snapshot()
	require.Len(t, snap.Buckets, 5)
	assert.Equal(t, 500.0, snap.Buckets[4].High)

	var sum float64
	for _, p := range snap.Prices {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestSubmitHugeTargetRejected(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}
	before := m.Snapshot()

	// A target needing millions of appended buckets must be rejected, not
	// admitted by growing the grid under the writer lock.
	order := buyOrder(10)
	order.TargetValue = 1e9
	res := m.SubmitOrder(context.Background(), order, auth, nil)

	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectInvalidOrder, res.Reason)
	assert.Zero(t, auth.fills)

	after := m.Snapshot()
	assert.Len(t, after.Buckets, len(before.Buckets))
	assert.Equal(t, before.Q, after.Q)
}

func TestSubmitBusy(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}
	before := m.Snapshot()

	// Occupy the writer section, then submit with a context that cannot
	// outwait it.
	require.NoError(t, m.lock(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	res := m.SubmitOrder(ctx, buyOrder(10), auth, nil)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectBusy, res.Reason)
	assert.Zero(t, auth.fills)

	after := m.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Q, after.Q)

	// Once the writer frees up, the same order fills normally.
	m.unlock()
	res = m.SubmitOrder(context.Background(), buyOrder(10), auth, nil)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
}

func TestAboveContractSplitsBucket(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}
	before := m.Snapshot()

	order := buyOrder(5)
	order.Contract = domain.ContractAbove
	order.TargetValue = 150 // interior of bucket [100, 200)
	res := m.SubmitOrder(context.Background(), order, auth, nil)

	require.Equal(t, domain.OrderStatusFilled, res.Status)
	snap := m.Snapshot()
	require.Len(t, snap.Buckets, 4)
	assert.Equal(t, 150.0, snap.Buckets[1].High)
	assert.Equal(t, 150.0, snap.Buckets[2].Low)
	assert.Len(t, before.Buckets, 3)

	var sum float64
	for _, p := range snap.Prices {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestSplitPreservesMass(t *testing.T) {
	m := newTestMarket(t, 3000)

	before := m.Snapshot()
	require.NoError(t, m.lock(context.Background()))
	_, err := m.ensureValueLocked(140, true)
	require.NoError(t, err)
	require.NoError(t, m.publishLocked())
	m.unlock()

	after := m.Snapshot()
	require.Len(t, after.Prices, 4)
	// The split halves carry exactly the original bucket's probability.
	assert.InDelta(t, before.Prices[1], after.Prices[1]+after.Prices[2], 1e-9)
	assert.InDelta(t, before.Prices[1]*0.4, after.Prices[1], 1e-9)
}

func TestAuthorizerRejection(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{authErr: Reject(domain.RejectPositionLimitExceeded, "limit")}

	res := m.SubmitOrder(context.Background(), buyOrder(10), auth, nil)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectPositionLimitExceeded, res.Reason)
	assert.Zero(t, m.Snapshot().NetCash)
	assert.Zero(t, auth.fills)
}

func TestPausedRejection(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{authErr: domain.ErrTradingPaused}

	res := m.SubmitOrder(context.Background(), buyOrder(10), auth, nil)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectTradingPaused, res.Reason)
}

func TestSettlementFailureRollsBack(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}
	w := wallet.NewMemory() // alice holds zero
	before := m.Snapshot()

	res := m.SubmitOrder(context.Background(), buyOrder(10), auth, w)

	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectInsufficientFunds, res.Reason)
	assert.Zero(t, auth.fills)

	after := m.Snapshot()
	assert.Equal(t, before.Q, after.Q)
	assert.Zero(t, after.NetCash)
}

func TestSettlementDebitsAndCredits(t *testing.T) {
	m := newTestMarket(t, 3000)
	auth := &stubAuth{}
	w := wallet.NewMemory()
	ctx := context.Background()
	require.NoError(t, w.Credit(ctx, "alice", 100, "funding"))

	buy := m.SubmitOrder(ctx, buyOrder(10), auth, w)
	require.Equal(t, domain.OrderStatusFilled, buy.Status)

	balance, err := w.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 100-buy.Payment, balance, 1e-9)

	sell := buyOrder(10)
	sell.ID = "o2"
	sell.Side = domain.OrderSideSell
	res := m.SubmitOrder(ctx, sell, auth, w)
	require.Equal(t, domain.OrderStatusFilled, res.Status)

	balance, err = w.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 100, balance, 1e-9)
}

func TestSetLiquidity(t *testing.T) {
	m := newTestMarket(t, 3000)

	require.NoError(t, m.SetLiquidity(context.Background(), 5000))
	assert.Equal(t, 5000.0, m.Snapshot().B)

	assert.ErrorIs(t, m.SetLiquidity(context.Background(), 0), domain.ErrDomain)
	assert.ErrorIs(t, m.SetLiquidity(context.Background(), math.NaN()), domain.ErrDomain)
}

func TestRecalibrate(t *testing.T) {
	m := newTestMarket(t, 3000)
	target := []float64{0.6, 0.3, 0.1}

	// Full weight lands exactly on the target prior.
	require.NoError(t, m.Recalibrate(context.Background(), target, 1))
	for i, p := range m.Snapshot().Prices {
		assert.InDelta(t, target[i], p, 1e-9)
	}

	assert.ErrorIs(t, m.Recalibrate(context.Background(), target, 0), domain.ErrDomain)
	assert.ErrorIs(t, m.Recalibrate(context.Background(), target, 1.5), domain.ErrDomain)
	assert.ErrorIs(t, m.Recalibrate(context.Background(), []float64{1}, 1), domain.ErrInvalidPrior)
}

func TestCheckState(t *testing.T) {
	m := newTestMarket(t, 3000)
	require.NoError(t, m.CheckState(context.Background()))
}

func TestCommitZeroDelta(t *testing.T) {
	m := newTestMarket(t, 3000)
	v := m.Snapshot().Version

	pay, err := m.Commit(context.Background(), "", []float64{0, 0, 0}, true)
	require.NoError(t, err)
	assert.Zero(t, pay)
	assert.Equal(t, v, m.Snapshot().Version)
}
