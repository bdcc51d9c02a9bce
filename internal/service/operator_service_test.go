package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/risk"
	"github.com/quantish/rangemaker/internal/wallet"
)

func newTestOperator(t *testing.T) (*OperatorService, *MarketService) {
	t.Helper()
	w := wallet.NewMemory()
	require.NoError(t, w.Credit(context.Background(), "alice", 1_000, "funding"))

	riskCtl := risk.NewController(risk.Defaults(), w, nil, testLogger())
	markets := NewMarketService(MarketServiceConfig{}, riskCtl, w, testLogger())
	ops := NewOperatorService(markets, riskCtl, nil, nil, testLogger())

	_, err := markets.CreateMarket(context.Background(), engineTestConfig())
	require.NoError(t, err)
	return ops, markets
}

func TestOperatorSetLiquidity(t *testing.T) {
	ops, markets := newTestOperator(t)
	ctx := context.Background()

	require.NoError(t, ops.SetLiquidity(ctx, "val-2026", 5000))
	snap, err := markets.GetState(ctx, "val-2026")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, snap.B)

	assert.ErrorIs(t, ops.SetLiquidity(ctx, "val-2026", -1), domain.ErrDomain)
	assert.ErrorIs(t, ops.SetLiquidity(ctx, "missing", 100), domain.ErrNotFound)
}

func TestOperatorRecalibrate(t *testing.T) {
	ops, markets := newTestOperator(t)
	ctx := context.Background()
	target := []float64{0.5, 0.3, 0.2}

	require.NoError(t, ops.Recalibrate(ctx, "val-2026", target, 1))
	prices, err := markets.GetPrices(ctx, "val-2026")
	require.NoError(t, err)
	for i := range target {
		assert.InDelta(t, target[i], prices[i], 1e-9)
	}

	assert.ErrorIs(t, ops.Recalibrate(ctx, "val-2026", target, 2), domain.ErrDomain)
	assert.ErrorIs(t, ops.Recalibrate(ctx, "val-2026", []float64{1}, 1), domain.ErrInvalidPrior)
}

func TestOperatorPauseResume(t *testing.T) {
	ops, markets := newTestOperator(t)
	ctx := context.Background()

	ops.Pause(ctx, "scheduled maintenance")
	paused, reason, _ := ops.Status(ctx, "val-2026")
	assert.True(t, paused)
	assert.Equal(t, "scheduled maintenance", reason)

	// Orders bounce while paused.
	res, err := markets.Submit(ctx, marketBuy(5))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, domain.RejectTradingPaused, res.Reason)

	ops.Resume(ctx)
	paused, _, _ = ops.Status(ctx, "val-2026")
	assert.False(t, paused)

	res, err = markets.Submit(ctx, marketBuy(5))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
}

func TestOperatorStatusNetCash(t *testing.T) {
	ops, markets := newTestOperator(t)
	ctx := context.Background()

	res, err := markets.Submit(ctx, marketBuy(10))
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFilled, res.Status)

	_, _, netCash := ops.Status(ctx, "val-2026")
	assert.InDelta(t, res.Payment, netCash, 1e-9)
}

func TestOperatorCheckState(t *testing.T) {
	ops, _ := newTestOperator(t)

	assert.NoError(t, ops.CheckState(context.Background(), "val-2026"))
	assert.ErrorIs(t, ops.CheckState(context.Background(), "missing"), domain.ErrNotFound)
}
