package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/lmsr"
)

// Quote prices a raw share delta against the latest snapshot without taking
// the writer lock. Zero deltas quote to exactly 0.
func (m *Market) Quote(delta []float64) (float64, error) {
	snap := m.Snapshot()
	if len(delta) != len(snap.Q) {
		return 0, fmt.Errorf("engine: market %s: delta length %d != q length %d: %w",
			m.id, len(delta), len(snap.Q), domain.ErrShape)
	}
	if isZero(delta) {
		return 0, nil
	}
	return lmsr.PaymentFor(snap.Q, delta, snap.B)
}

// validateDelta recomputes post-trade prices and rejects deltas that push the
// price vector out of shape: any negative entry (impossible given the math,
// guards malformed input) or a mass drift beyond tolerance (guards numerical
// blow-up from pathological b or extreme deltas).
func validateDelta(q, delta []float64, b float64) error {
	if len(delta) != len(q) {
		return fmt.Errorf("engine: delta length %d != q length %d: %w", len(delta), len(q), domain.ErrShape)
	}
	after := make([]float64, len(q))
	for i := range q {
		after[i] = q[i] + delta[i]
	}
	p, err := lmsr.Prices(after, b)
	if err != nil {
		return err
	}
	var sum float64
	for _, pk := range p {
		if pk < 0 {
			return fmt.Errorf("engine: post-trade price %g negative: %w", pk, domain.ErrDomain)
		}
		sum += pk
	}
	if math.Abs(sum-1) > lmsr.SumTolerance {
		return fmt.Errorf("engine: post-trade prices sum to %g: %w", sum, domain.ErrDomain)
	}
	return nil
}

// Commit applies a raw share delta through the serialized writer path. This
// is the low-level entry used by the evidence updater and tests; orders go
// through SubmitOrder. Payment is recorded into the market's net cash when
// settle is true.
func (m *Market) Commit(ctx context.Context, user string, delta []float64, settle bool) (float64, error) {
	if err := m.lock(ctx); err != nil {
		return 0, err
	}
	defer m.unlock()

	if isZero(delta) && len(delta) == len(m.q) {
		return 0, nil
	}
	if err := validateDelta(m.q, delta, m.b); err != nil {
		return 0, err
	}
	payment, err := lmsr.PaymentFor(m.q, delta, m.b)
	if err != nil {
		return 0, err
	}
	cash := 0.0
	if settle {
		cash = payment
	}
	if err := m.commitLocked(user, delta, cash); err != nil {
		return 0, err
	}
	return payment, nil
}

func isZero(delta []float64) bool {
	for _, d := range delta {
		if d != 0 {
			return false
		}
	}
	return true
}
