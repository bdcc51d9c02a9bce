package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/lmsr"
)

// evidenceEps floors both sides of the log-ratio so zero-probability buckets
// neither divide by zero nor produce infinite deltas.
const evidenceEps = 1e-12

// DefaultEvidenceBoost strengthens the yes-distribution's odds before mixing,
// matching how supporting evidence is weighted in practice.
const DefaultEvidenceBoost = 1.5

// EvidenceDelta converts a piece of evidence into a share delta that moves
// the market from its current prices p toward the confidence-weighted target
// p' = c*pYes + (1-c)*pNo:
//
//	delta_k = b * ln((p'_k + eps) / (p_k + eps))
//
// The yes-distribution's odds are boosted by the given factor first (boost
// values <= 0 mean no boost). Confidence outside [0, 1] is a DomainError.
func EvidenceDelta(p, pYes, pNo []float64, confidence, b, boost float64) ([]float64, error) {
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		return nil, fmt.Errorf("engine: evidence confidence %g outside [0,1]: %w", confidence, domain.ErrDomain)
	}
	if b <= 0 {
		return nil, fmt.Errorf("engine: evidence liquidity b=%g must be positive: %w", b, domain.ErrDomain)
	}
	if len(pYes) != len(p) || len(pNo) != len(p) {
		return nil, fmt.Errorf("engine: evidence distributions length %d/%d != prices length %d: %w",
			len(pYes), len(pNo), len(p), domain.ErrShape)
	}

	delta := make([]float64, len(p))
	for k := range p {
		py := pYes[k]
		if boost > 0 && boost != 1 {
			py = (boost * py) / (boost*py + (1 - py))
		}
		target := confidence*py + (1-confidence)*pNo[k]
		delta[k] = b * math.Log((target+evidenceEps)/(p[k]+evidenceEps))
	}
	return delta, nil
}

// ApplyEvidence computes the belief-shift delta against the current snapshot
// and pushes it through the same serialized commit path as a user trade. No
// cash moves: the shift is the market maker updating its own book, so the
// notional payment is returned for observability but not added to net cash.
func (m *Market) ApplyEvidence(ctx context.Context, pYes, pNo []float64, confidence, boost float64) (float64, error) {
	if err := m.lock(ctx); err != nil {
		return 0, err
	}
	defer m.unlock()

	p, err := lmsr.Prices(m.q, m.b)
	if err != nil {
		return 0, err
	}
	delta, err := EvidenceDelta(p, pYes, pNo, confidence, m.b, boost)
	if err != nil {
		return 0, err
	}
	if err := validateDelta(m.q, delta, m.b); err != nil {
		return 0, err
	}
	payment, err := lmsr.PaymentFor(m.q, delta, m.b)
	if err != nil {
		return 0, err
	}
	if err := m.commitLocked("", delta, 0); err != nil {
		return 0, err
	}
	return payment, nil
}
