package engine

import (
	"fmt"
	"math"

	"github.com/quantish/rangemaker/internal/domain"
)

// DefaultScenarioDelta is the shift applied to the fitted tail index for the
// low and high scenarios.
const DefaultScenarioDelta = 0.3

// tailMassCut marks where the lognormal body ends and the Pareto tail
// begins: the tail holds the last 10% of probability mass.
const tailMassCut = 0.10

// sigmaFloor keeps the body fit usable when the mass is concentrated in one
// bucket.
const sigmaFloor = 1e-8

// Scenario reports exceedance probabilities P(V >= threshold) under the
// distribution implied by the current price vector: a lognormal fitted to the
// body in log10 space and a Pareto tail above the cut point. Low and High
// re-evaluate the tail with its index shifted down and up by delta, so Low is
// the heavier-tail reading.
type Scenario struct {
	Threshold float64 `json:"threshold"`
	Base      float64 `json:"base"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	Mu        float64 `json:"mu"`
	Sigma     float64 `json:"sigma"`
	Alpha     float64 `json:"alpha"`
	Tau       float64 `json:"tau"`
}

// ImpliedScenario fits the hybrid distribution to prices over buckets and
// evaluates it at threshold. Bucket centers anchor each probability in log10
// space, so every center must be positive.
func ImpliedScenario(buckets []domain.Bucket, prices []float64, threshold, delta float64) (Scenario, error) {
	if len(buckets) == 0 {
		return Scenario{}, fmt.Errorf("engine: empty bucket list: %w", domain.ErrInvalidState)
	}
	if len(prices) != len(buckets) {
		return Scenario{}, fmt.Errorf("engine: %d prices vs %d buckets: %w", len(prices), len(buckets), domain.ErrShape)
	}
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return Scenario{}, fmt.Errorf("engine: scenario threshold %g must be positive and finite: %w", threshold, domain.ErrDomain)
	}
	if delta < 0 {
		return Scenario{}, fmt.Errorf("engine: scenario delta %g must be non-negative: %w", delta, domain.ErrDomain)
	}

	x := make([]float64, len(buckets))
	for i, bk := range buckets {
		if bk.Center <= 0 {
			return Scenario{}, fmt.Errorf("engine: bucket %d center %g not positive: %w", i, bk.Center, domain.ErrDomain)
		}
		x[i] = math.Log10(bk.Center)
	}

	cdf := make([]float64, len(prices))
	sum := 0.0
	for i, p := range prices {
		sum += p
		cdf[i] = sum
	}

	// The tail starts at the highest bucket where the remaining mass first
	// exceeds the cut.
	tau := len(prices) - 1
	tailMass := 0.0
	for i := len(prices) - 1; i >= 0; i-- {
		tailMass += prices[i]
		if tailMass > tailMassCut {
			tau = i
			break
		}
	}

	// Lognormal body: probability-weighted moments in log10 space.
	var z, mean, mean2 float64
	for i := 0; i <= tau; i++ {
		z += prices[i]
		mean += prices[i] * x[i]
		mean2 += prices[i] * x[i] * x[i]
	}
	mean /= z
	mean2 /= z
	sigma := math.Sqrt(math.Max(mean2-mean*mean, sigmaFloor))

	// Pareto tail index from the mean log-exceedance above the cut point.
	xTau := x[tau]
	alpha := 2.0
	var zTail, denom float64
	for i := tau; i < len(prices); i++ {
		zTail += prices[i]
		if x[i] > xTau {
			denom += prices[i] * (x[i] - xTau)
		}
	}
	if zTail > 0 && denom > 0 && tau < len(prices)-1 {
		alpha = zTail / denom
	}

	sTau := 1 - cdf[tau]
	xK := math.Log10(threshold)

	return Scenario{
		Threshold: threshold,
		Base:      hybridExceedance(xK, mean, sigma, xTau, sTau, alpha),
		Low:       hybridExceedance(xK, mean, sigma, xTau, sTau, alpha-delta),
		High:      hybridExceedance(xK, mean, sigma, xTau, sTau, alpha+delta),
		Mu:        mean,
		Sigma:     sigma,
		Alpha:     alpha,
		Tau:       xTau,
	}, nil
}

// hybridExceedance evaluates P(V >= 10^xK): the truncated lognormal body
// below the cut point, the Pareto survival function above it. The two pieces
// meet at sTau, so the curve is continuous at the cut.
func hybridExceedance(xK, mu, sigma, xTau, sTau, alpha float64) float64 {
	if xK >= xTau {
		return clamp01(sTau * math.Pow(10, -alpha*(xK-xTau)))
	}
	return clamp01(1 - bodyCDF(xK, mu, sigma, xTau)*(1-sTau))
}

// bodyCDF is the lognormal CDF in log10 space, renormalized so it reaches 1
// at the cut point.
func bodyCDF(xK, mu, sigma, xTau float64) float64 {
	if sigma < sigmaFloor {
		if xK > mu {
			return 1
		}
		return 0
	}
	raw := normCDF((xK - mu) / sigma)
	scale := normCDF((xTau - mu) / sigma)
	if scale <= 0 {
		scale = 1
	}
	return clamp01(raw / scale)
}

// normCDF is the standard normal CDF.
func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}
