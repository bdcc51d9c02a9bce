// Package lmsr implements the Logarithmic Market Scoring Rule cost function
// over an arbitrary number of outcome buckets.
//
// All formulas use the max-subtraction (log-sum-exp) form. This is not an
// optimization: production share magnitudes divided by small liquidity
// parameters overflow the naive exponentials, so the stable form is the only
// acceptable one.
//
// Reference: Robin Hanson, "Logarithmic Market Scoring Rules for Modular
// Combinatorial Information Aggregation", 2003.
package lmsr

import (
	"fmt"
	"math"

	"github.com/quantish/rangemaker/internal/domain"
)

const (
	// SumTolerance is the relative tolerance on sum(prices) == 1.
	SumTolerance = 1e-9

	// maxSpreadExponent bounds (max(q) - min(q)) / b. Beyond it the smallest
	// price underflows to exactly zero and the p_k > 0 guarantee breaks, so
	// the engine fails fast instead of returning corrupted prices.
	maxSpreadExponent = 700.0

	// sharesIterations bounds the SharesForCost bisection.
	sharesIterations = 100
)

// checkDomain validates q and b for every entry point.
func checkDomain(q []float64, b float64) error {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return fmt.Errorf("lmsr: liquidity parameter b=%g must be positive and finite: %w", b, domain.ErrDomain)
	}
	if len(q) == 0 {
		return fmt.Errorf("lmsr: empty share vector: %w", domain.ErrDomain)
	}
	lo, hi := q[0], q[0]
	for _, v := range q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("lmsr: non-finite share quantity %g: %w", v, domain.ErrDomain)
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if (hi-lo)/b > maxSpreadExponent {
		return fmt.Errorf("lmsr: share spread %g too large for b=%g, prices would underflow: %w", hi-lo, b, domain.ErrDomain)
	}
	return nil
}

// Cost evaluates C(q) = b * (ln(sum_k exp((q_k - m)/b)) + m/b) with m = max(q).
// Pure function, no side effects.
func Cost(q []float64, b float64) (float64, error) {
	if err := checkDomain(q, b); err != nil {
		return 0, err
	}
	m := maxOf(q)
	var sumExp float64
	for _, qk := range q {
		sumExp += math.Exp((qk - m) / b)
	}
	return b*math.Log(sumExp) + m, nil
}

// Prices returns the stable softmax of q/b. The result sums to 1 within
// SumTolerance and every entry is strictly in (0, 1) for len(q) > 1.
func Prices(q []float64, b float64) ([]float64, error) {
	if err := checkDomain(q, b); err != nil {
		return nil, err
	}
	m := maxOf(q)
	exps := make([]float64, len(q))
	var sumExp float64
	for i, qk := range q {
		exps[i] = math.Exp((qk - m) / b)
		sumExp += exps[i]
	}
	for i := range exps {
		exps[i] /= sumExp
	}
	return exps, nil
}

// PaymentFor returns C(q + delta) - C(q): the signed cash flow for moving the
// market by delta. Positive means the trader pays the AMM.
func PaymentFor(q, delta []float64, b float64) (float64, error) {
	if len(delta) != len(q) {
		return 0, fmt.Errorf("lmsr: delta length %d != q length %d: %w", len(delta), len(q), domain.ErrShape)
	}
	before, err := Cost(q, b)
	if err != nil {
		return 0, err
	}
	after := make([]float64, len(q))
	for i := range q {
		after[i] = q[i] + delta[i]
	}
	afterCost, err := Cost(after, b)
	if err != nil {
		return 0, err
	}
	return afterCost - before, nil
}

// BidAsk computes, per bucket, the mid price together with the one-share ask
// (cost to buy one share) and bid (proceeds of selling one share).
func BidAsk(q []float64, b float64) ([]domain.BucketQuote, error) {
	mids, err := Prices(q, b)
	if err != nil {
		return nil, err
	}
	base, err := Cost(q, b)
	if err != nil {
		return nil, err
	}

	quotes := make([]domain.BucketQuote, len(q))
	work := make([]float64, len(q))
	copy(work, q)
	for k := range q {
		work[k] = q[k] + 1
		up, err := Cost(work, b)
		if err != nil {
			return nil, err
		}
		work[k] = q[k] - 1
		down, err := Cost(work, b)
		if err != nil {
			return nil, err
		}
		work[k] = q[k]

		quotes[k] = domain.BucketQuote{
			Mid: mids[k],
			Ask: up - base,
			Bid: base - down,
		}
	}
	return quotes, nil
}

// MaxLoss returns the market maker's worst-case loss, b * ln(n), for a
// freshly seeded uniform market over n buckets.
func MaxLoss(n int, b float64) float64 {
	if n < 1 || b <= 0 {
		return 0
	}
	return b * math.Log(float64(n))
}

// SharesForCost returns how many shares of bucket k can be bought for spend,
// found by bisection on the payment function.
func SharesForCost(q []float64, b float64, k int, spend float64) (float64, error) {
	if err := checkDomain(q, b); err != nil {
		return 0, err
	}
	if k < 0 || k >= len(q) {
		return 0, fmt.Errorf("lmsr: bucket index %d out of range: %w", k, domain.ErrShape)
	}
	if spend <= 0 {
		return 0, nil
	}

	cost := func(shares float64) float64 {
		work := make([]float64, len(q))
		copy(work, q)
		work[k] += shares
		c, err := Cost(work, b)
		if err != nil {
			return math.Inf(1)
		}
		base, _ := Cost(q, b)
		return c - base
	}

	// Marginal price is below 1, so spend buys at least spend shares; grow
	// the bracket until it covers the spend.
	lo, hi := 0.0, spend
	for cost(hi) < spend && !math.IsInf(cost(hi), 1) {
		hi *= 2
	}
	for i := 0; i < sharesIterations; i++ {
		mid := (lo + hi) / 2
		if cost(mid) < spend {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

func maxOf(q []float64) float64 {
	m := q[0]
	for _, v := range q[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
