// Package prior validates and constructs the probability vectors used to
// seed a market's phantom shares. The engine only ever consumes a numeric
// prior; whoever estimates it (an operator, an external model) is a
// collaborator behind this boundary.
package prior

import (
	"fmt"
	"math"

	"github.com/quantish/rangemaker/internal/domain"
)

// sumTol is the absolute tolerance on sum(p0) == 1.
const sumTol = 1e-6

// Validate checks that p0 is a usable prior for n buckets: correct length,
// every entry strictly positive and finite, total mass 1.
func Validate(p0 []float64, n int) error {
	if len(p0) != n {
		return fmt.Errorf("prior: length %d != bucket count %d: %w", len(p0), n, domain.ErrInvalidPrior)
	}
	var sum float64
	for i, p := range p0 {
		if !(p > 0) || math.IsInf(p, 0) {
			return fmt.Errorf("prior: p0[%d]=%g must be strictly positive and finite: %w", i, p, domain.ErrInvalidPrior)
		}
		sum += p
	}
	if math.Abs(sum-1) > sumTol {
		return fmt.Errorf("prior: mass sums to %g, want 1: %w", sum, domain.ErrInvalidPrior)
	}
	return nil
}

// Seed converts a validated prior into phantom shares: q0_k = b * ln(p0_k).
// The resulting share vector reproduces p0 exactly under the LMSR softmax.
func Seed(p0 []float64, b float64, n int) ([]float64, error) {
	if b <= 0 {
		return nil, fmt.Errorf("prior: liquidity parameter b=%g must be positive: %w", b, domain.ErrDomain)
	}
	if err := Validate(p0, n); err != nil {
		return nil, err
	}
	q := make([]float64, n)
	for i, p := range p0 {
		q[i] = b * math.Log(p)
	}
	return q, nil
}

// Uniform returns the flat prior over n buckets.
func Uniform(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = 1 / float64(n)
	}
	return p
}

// Lognormal builds a prior over bucket centers from a lognormal belief with
// the given median and log-space sigma, normalized to unit mass. This is the
// default shape for valuation markets.
func Lognormal(buckets []domain.Bucket, median, sigma float64) ([]float64, error) {
	if median <= 0 || sigma <= 0 {
		return nil, fmt.Errorf("prior: lognormal median=%g sigma=%g must be positive: %w", median, sigma, domain.ErrDomain)
	}
	p := make([]float64, len(buckets))
	var sum float64
	for i, bk := range buckets {
		z := math.Log(bk.Center/median) / sigma
		p[i] = math.Exp(-0.5 * z * z)
		sum += p[i]
	}
	if sum == 0 {
		return nil, fmt.Errorf("prior: lognormal mass vanished over grid: %w", domain.ErrInvalidPrior)
	}
	for i := range p {
		p[i] /= sum
	}
	return p, nil
}

// LiquidityFromBankroll derives b from the operator's loss budget: the
// worst-case LMSR loss on a uniform n-bucket market is b * ln(n), so
// b = bankroll / ln(n) spends exactly the budget.
func LiquidityFromBankroll(bankroll float64, n int) (float64, error) {
	if bankroll <= 0 {
		return 0, fmt.Errorf("prior: bankroll %g must be positive: %w", bankroll, domain.ErrDomain)
	}
	if n < 2 {
		return 0, fmt.Errorf("prior: bankroll-derived liquidity needs at least 2 buckets, got %d: %w", n, domain.ErrConfig)
	}
	return bankroll / math.Log(float64(n)), nil
}
