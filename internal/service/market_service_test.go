package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/engine"
	"github.com/quantish/rangemaker/internal/grid"
	"github.com/quantish/rangemaker/internal/risk"
	"github.com/quantish/rangemaker/internal/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// engineTestConfig is the standard three-bucket market used across the
// service tests.
func engineTestConfig() engine.Config {
	return engine.Config{
		MarketID: "val-2026",
		Grid:     grid.Config{Min: 0, Max: 300, Policy: grid.PolicyFixed, FixedWidth: 100},
		B:        3000,
	}
}

// newTestService builds a memory-only service with a funded wallet.
func newTestService(t *testing.T) (*MarketService, *wallet.Memory) {
	t.Helper()
	w := wallet.NewMemory()
	require.NoError(t, w.Credit(context.Background(), "alice", 1_000, "funding"))

	riskCtl := risk.NewController(risk.Defaults(), w, nil, testLogger())
	svc := NewMarketService(MarketServiceConfig{}, riskCtl, w, testLogger())

	_, err := svc.CreateMarket(context.Background(), engineTestConfig())
	require.NoError(t, err)
	return svc, w
}

func marketBuy(size float64) domain.Order {
	return domain.Order{
		MarketID:    "val-2026",
		User:        "alice",
		Kind:        domain.OrderKindMarket,
		Side:        domain.OrderSideBuy,
		Contract:    domain.ContractBucket,
		TargetValue: 50,
		Size:        size,
	}
}

func TestCreateMarketDuplicate(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateMarket(context.Background(), engine.Config{
		MarketID: "val-2026",
		Grid:     grid.Config{Min: 0, Max: 300, Policy: grid.PolicyFixed, FixedWidth: 100},
		B:        3000,
	})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestMarketNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Market("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetPrices(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = svc.Quote(context.Background(), domain.Order{MarketID: "missing", Size: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuoteAndSubmit(t *testing.T) {
	svc, w := newTestService(t)
	ctx := context.Background()

	payment, avg, err := svc.Quote(ctx, marketBuy(10))
	require.NoError(t, err)
	assert.Greater(t, payment, 0.0)
	assert.Greater(t, avg, 0.0)

	res, err := svc.Submit(ctx, marketBuy(10))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.NotEmpty(t, res.OrderID)
	assert.InDelta(t, payment, res.Payment, 1e-9)

	balance, err := w.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 1_000-res.Payment, balance, 1e-9)

	prices, err := svc.GetPrices(ctx, "val-2026")
	require.NoError(t, err)
	assert.Greater(t, prices[0], 1.0/3)
}

func TestSubmitUnfundedUser(t *testing.T) {
	svc, _ := newTestService(t)

	order := marketBuy(10)
	order.User = "bob"
	res, err := svc.Submit(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectInsufficientFunds, res.Reason)
}

func TestCancelWithoutStore(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Cancel(context.Background(), "o1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBidAskCarriesBuckets(t *testing.T) {
	svc, _ := newTestService(t)

	quotes, err := svc.BidAsk(context.Background(), "val-2026")
	require.NoError(t, err)
	require.Len(t, quotes, 3)
	assert.Equal(t, 100.0, quotes[0].Bucket.High)
	for _, q := range quotes {
		assert.Greater(t, q.Ask, q.Mid)
		assert.Less(t, q.Bid, q.Mid)
	}
}

func TestListPositionsLive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, marketBuy(10))
	require.NoError(t, err)

	rows, err := svc.ListPositions(ctx, "val-2026", "alice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].User)
	assert.InDelta(t, 10, rows[0].Shares, 1e-9)

	rows, err = svc.ListPositions(ctx, "val-2026", "bob")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestScenarioReadOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	before, err := svc.GetState(ctx, "val-2026")
	require.NoError(t, err)

	sc, err := svc.Scenario(ctx, "val-2026", 150)
	require.NoError(t, err)
	assert.Greater(t, sc.Base, 0.0)
	assert.Less(t, sc.Base, 1.0)

	after, err := svc.GetState(ctx, "val-2026")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)

	_, err = svc.Scenario(ctx, "missing", 150)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Scenario(ctx, "val-2026", -1)
	assert.ErrorIs(t, err, domain.ErrDomain)
}

func TestApplyEvidenceMovesPrices(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pYes := []float64{0.8, 0.1, 0.1}
	pNo := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	_, err := svc.ApplyEvidence(ctx, "val-2026", pYes, pNo, 0.9)
	require.NoError(t, err)

	prices, err := svc.GetPrices(ctx, "val-2026")
	require.NoError(t, err)
	assert.Greater(t, prices[0], 0.5)

	_, err = svc.ApplyEvidence(ctx, "val-2026", pYes, pNo, 1.5)
	assert.ErrorIs(t, err, domain.ErrDomain)
}
