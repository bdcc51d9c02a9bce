package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/lmsr"
)

// Limits are the trade-shaping parameters the risk controller hands the
// executor before a trade is priced.
type Limits struct {
	// MaxBucketShares caps |delta_k| in the dominant bucket; the executable
	// size is clipped to stay inside it. Zero means uncapped.
	MaxBucketShares float64
	// SpreadMult widens the effective spread while the circuit breaker is
	// tripped: buy payments are multiplied by it, sell proceeds divided.
	// Values <= 1 mean no widening.
	SpreadMult float64
	// LiquidityScale temporarily inflates the effective b under stress.
	// Values <= 1 mean no inflation.
	LiquidityScale float64
}

// AuthRequest is a fully priced trade presented for authorization.
type AuthRequest struct {
	MarketID  string
	User      string
	Delta     []float64
	Payment   float64
	Positions []float64 // user's current per-bucket shares
}

// Authorizer is the risk controller as seen from the executor. Authorize
// returns a rejection sentinel (never mutating state); RecordFill observes
// committed trades for liability and volatility tracking.
type Authorizer interface {
	Limits(marketID string) Limits
	Authorize(ctx context.Context, req AuthRequest) error
	RecordFill(marketID string, payment float64, prices []float64, ts time.Time)
}

// ContractWeights maps a contract to its per-bucket payoff weights against
// the given bucket list. Weights are the payoff-overlap ratio: 1 for buckets
// fully inside the payoff region, the covered fraction for the bucket
// straddling the threshold, 0 elsewhere.
func ContractWeights(buckets []domain.Bucket, kind domain.ContractKind, target float64) ([]float64, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("engine: empty bucket list: %w", domain.ErrInvalidState)
	}
	w := make([]float64, len(buckets))

	switch kind {
	case domain.ContractBucket:
		// Single-bucket bet; out-of-range targets clamp to the end buckets.
		idx := len(buckets) - 1
		for i, bk := range buckets {
			if bk.Contains(target) {
				idx = i
				break
			}
		}
		if target < buckets[0].Low {
			idx = 0
		}
		w[idx] = 1

	case domain.ContractAbove:
		for i, bk := range buckets {
			w[i] = clamp01((bk.High - target) / bk.Width())
		}

	case domain.ContractBelow:
		for i, bk := range buckets {
			w[i] = clamp01((target - bk.Low) / bk.Width())
		}

	default:
		return nil, fmt.Errorf("engine: unknown contract kind %q: %w", kind, domain.ErrDomain)
	}
	return w, nil
}

// QuoteOrder estimates the payment for an order against the latest snapshot.
// It is side-effect-free: no lock, no grid changes, no risk consultation
// beyond the current spread widening. Targets beyond the current upper bound
// are priced against the clamped grid.
func (m *Market) QuoteOrder(order domain.Order, limits Limits) (payment, avgPrice float64, err error) {
	if order.Size <= 0 || math.IsNaN(order.Size) {
		return 0, 0, fmt.Errorf("engine: order size %g must be positive: %w", order.Size, domain.ErrDomain)
	}
	snap := m.Snapshot()
	w, err := ContractWeights(snap.Buckets, order.Contract, order.TargetValue)
	if err != nil {
		return 0, 0, err
	}
	delta := scaled(w, order.Side.Sign()*order.Size)

	effB := snap.B
	if limits.LiquidityScale > 1 {
		effB *= limits.LiquidityScale
	}
	payment, err = lmsr.PaymentFor(snap.Q, delta, effB)
	if err != nil {
		return 0, 0, err
	}
	payment = widen(payment, limits.SpreadMult)
	return payment, math.Abs(payment) / order.Size, nil
}

// SubmitOrder runs the order state machine to a terminal state. The entire
// resolve→price→authorize→commit→settle sequence happens inside the writer
// section; rejection at any stage leaves q, b, positions and P&L untouched.
func (m *Market) SubmitOrder(ctx context.Context, order domain.Order, auth Authorizer, wallet domain.Wallet) domain.OrderResult {
	res := domain.OrderResult{
		OrderID:       order.ID,
		Status:        domain.OrderStatusRejected,
		RequestedSize: order.Size,
	}
	if order.Size <= 0 || math.IsNaN(order.Size) || math.IsInf(order.Size, 0) {
		res.Reason = domain.RejectInvalidOrder
		return res
	}

	if err := m.lock(ctx); err != nil {
		res.Reason = domain.RejectBusy
		return res
	}
	defer m.unlock()

	// Resolve the target: extend for out-of-range values, and make threshold
	// targets exact boundaries so apportionment is not needed at commit time.
	splitAt := order.Contract == domain.ContractAbove || order.Contract == domain.ContractBelow
	if _, err := m.ensureValueLocked(order.TargetValue, splitAt); err != nil {
		res.Reason = domain.RejectInvalidOrder
		return res
	}

	w, err := ContractWeights(m.grid.Buckets(), order.Contract, order.TargetValue)
	if err != nil {
		res.Reason = domain.RejectInvalidOrder
		return res
	}
	delta := scaled(w, order.Side.Sign()*order.Size)

	// Per-trade exposure cap: clip rather than reject, reporting a partial.
	limits := auth.Limits(m.id)
	filled := order.Size
	partial := false
	if limits.MaxBucketShares > 0 {
		if peak := maxAbs(delta); peak > limits.MaxBucketShares {
			factor := limits.MaxBucketShares / peak
			filled = order.Size * factor
			delta = scaled(w, order.Side.Sign()*filled)
			partial = true
		}
	}

	effB := m.b
	if limits.LiquidityScale > 1 {
		effB *= limits.LiquidityScale
	}
	if err := validateDelta(m.q, delta, effB); err != nil {
		res.Reason = domain.RejectInvalidOrder
		return res
	}
	payment, err := lmsr.PaymentFor(m.q, delta, effB)
	if err != nil {
		res.Reason = domain.RejectInvalidOrder
		return res
	}
	payment = widen(payment, limits.SpreadMult)
	perUnit := math.Abs(payment) / filled

	// Price protection for limit and stop orders.
	switch order.Kind {
	case domain.OrderKindLimit:
		if order.LimitPrice <= 0 {
			res.Reason = domain.RejectInvalidOrder
			return res
		}
		if math.Abs(perUnit-order.LimitPrice)/order.LimitPrice > m.slipTol {
			res.Reason = domain.RejectSlippageExceeded
			return res
		}
	case domain.OrderKindStop:
		if order.StopPrice <= 0 {
			res.Reason = domain.RejectInvalidOrder
			return res
		}
		if !m.stopTriggeredLocked(w, order) {
			res.Reason = domain.RejectStopNotTriggered
			return res
		}
		if math.Abs(perUnit-order.StopPrice)/order.StopPrice > m.slipTol {
			res.Reason = domain.RejectSlippageExceeded
			return res
		}
	}

	// Risk authorization against the fully priced trade.
	userPos := m.userPositionsLocked(order.User)
	posCopy := make([]float64, len(userPos))
	copy(posCopy, userPos)
	if err := auth.Authorize(ctx, AuthRequest{
		MarketID:  m.id,
		User:      order.User,
		Delta:     delta,
		Payment:   payment,
		Positions: posCopy,
	}); err != nil {
		res.Reason = reasonFor(err)
		return res
	}

	// Commit, then settle. A debit failure after the commit reverts it; the
	// two move as one.
	prevQ := make([]float64, len(m.q))
	copy(prevQ, m.q)
	prevCash := m.netCash

	if err := m.commitLocked(order.User, delta, payment); err != nil {
		res.Reason = domain.RejectInvalidOrder
		return res
	}

	if err := m.settle(ctx, wallet, order, payment); err != nil {
		m.restoreLocked(prevQ, posCopy, order.User, prevCash)
		res.Reason = domain.ReasonForError(err)
		return res
	}

	auth.RecordFill(m.id, payment, m.Snapshot().Prices, time.Now().UTC())

	res.Status = domain.OrderStatusFilled
	if partial {
		res.Status = domain.OrderStatusPartiallyFilled
	}
	res.FilledSize = filled
	res.Payment = payment
	res.AvgPrice = perUnit
	return res
}

// settle moves cash through the wallet: filled buys debit exactly once,
// filled sells credit exactly once.
func (m *Market) settle(ctx context.Context, wallet domain.Wallet, order domain.Order, payment float64) error {
	if wallet == nil || order.User == "" {
		return nil
	}
	ref := "order:" + order.ID
	switch {
	case payment > 0:
		return wallet.Debit(ctx, order.User, payment, ref)
	case payment < 0:
		return wallet.Credit(ctx, order.User, -payment, ref)
	}
	return nil
}

// stopTriggeredLocked checks that the market has crossed the stop threshold:
// buy stops trigger at or above the stop price, sell stops at or below.
func (m *Market) stopTriggeredLocked(w []float64, order domain.Order) bool {
	p, err := lmsr.Prices(m.q, m.b)
	if err != nil {
		return false
	}
	var current float64
	for i := range w {
		current += w[i] * p[i]
	}
	if order.Side == domain.OrderSideBuy {
		return current >= order.StopPrice
	}
	return current <= order.StopPrice
}

func reasonFor(err error) domain.RejectReason {
	switch {
	case errors.Is(err, domain.ErrTradingPaused):
		return domain.RejectTradingPaused
	case errors.Is(err, domain.ErrInsufficientFunds):
		return domain.RejectInsufficientFunds
	default:
		var rr rejectError
		if errors.As(err, &rr) {
			return rr.reason
		}
		return domain.RejectInvalidOrder
	}
}

// rejectError carries a RejectReason through the Authorizer error return.
type rejectError struct {
	reason domain.RejectReason
	msg    string
}

func (e rejectError) Error() string { return e.msg }

// Reject builds an authorization error carrying the given reason.
func Reject(reason domain.RejectReason, msg string) error {
	return rejectError{reason: reason, msg: msg}
}

func widen(payment, mult float64) float64 {
	if mult <= 1 {
		return payment
	}
	if payment >= 0 {
		return payment * mult
	}
	return payment / mult
}

func scaled(w []float64, factor float64) []float64 {
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v * factor
	}
	return out
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
