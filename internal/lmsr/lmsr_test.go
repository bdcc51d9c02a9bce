package lmsr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
)

func TestCostUniform(t *testing.T) {
	// All-zero shares reduce C(q) to b * ln(n).
	q := []float64{0, 0, 0, 0}
	b := 100.0

	c, err := Cost(q, b)
	require.NoError(t, err)
	assert.InDelta(t, b*math.Log(4), c, 1e-9)
}

func TestCostTranslationInvariance(t *testing.T) {
	// Adding a constant to every share raises C by exactly that constant.
	q := []float64{10, -5, 3}
	b := 50.0

	base, err := Cost(q, b)
	require.NoError(t, err)

	shifted := []float64{10 + 7, -5 + 7, 3 + 7}
	c, err := Cost(shifted, b)
	require.NoError(t, err)
	assert.InDelta(t, base+7, c, 1e-9)
}

func TestCostLargeMagnitudes(t *testing.T) {
	// The naive exp(q/b) would overflow here; the stable form must not.
	q := []float64{1e5, 1e5 - 10, 1e5 - 20}
	b := 3000.0

	c, err := Cost(q, b)
	require.NoError(t, err)
	assert.False(t, math.IsInf(c, 0))
	assert.False(t, math.IsNaN(c))
	assert.Greater(t, c, 1e5-1)
}

func TestPricesUniform(t *testing.T) {
	q := []float64{0, 0, 0}
	p, err := Prices(q, 100)
	require.NoError(t, err)

	for _, pk := range p {
		assert.InDelta(t, 1.0/3, pk, 1e-12)
	}
}

func TestPricesSumToOne(t *testing.T) {
	q := []float64{250, -120, 33, 7, -900}
	b := 75.0

	p, err := Prices(q, b)
	require.NoError(t, err)

	var sum float64
	for _, pk := range p {
		assert.Greater(t, pk, 0.0)
		assert.Less(t, pk, 1.0)
		sum += pk
	}
	assert.InDelta(t, 1.0, sum, SumTolerance)
}

func TestPricesShiftInvariance(t *testing.T) {
	// Softmax ignores a uniform shift of the share vector.
	q := []float64{5, 10, 15}
	b := 4.0

	p1, err := Prices(q, b)
	require.NoError(t, err)
	p2, err := Prices([]float64{5 + 100, 10 + 100, 15 + 100}, b)
	require.NoError(t, err)

	for i := range p1 {
		assert.InDelta(t, p1[i], p2[i], 1e-12)
	}
}

func TestPricesMonotoneInShares(t *testing.T) {
	// Raising one bucket's share quantity must strictly raise its price and
	// strictly lower every other price, from any starting vector.
	q := []float64{250, -120, 33, 7, -900}
	b := 75.0

	before, err := Prices(q, b)
	require.NoError(t, err)

	for k := range q {
		for _, bump := range []float64{0.5, 10, 200} {
			shifted := make([]float64, len(q))
			copy(shifted, q)
			shifted[k] += bump

			after, err := Prices(shifted, b)
			require.NoError(t, err)

			assert.Greater(t, after[k], before[k], "bucket %d bump %g", k, bump)
			for j := range after {
				if j == k {
					continue
				}
				assert.Less(t, after[j], before[j], "bucket %d bump %g lowers %d", k, bump, j)
			}
		}
	}
}

func TestPaymentZeroDelta(t *testing.T) {
	q := []float64{12, 4, -8}
	pay, err := PaymentFor(q, []float64{0, 0, 0}, 30)
	require.NoError(t, err)
	assert.Zero(t, pay)
}

func TestPaymentRoundTrip(t *testing.T) {
	// Buying then immediately selling the same delta must net to zero cash.
	q := []float64{0, 0, 0, 0}
	b := 200.0
	delta := []float64{25, 0, 0, 0}

	buy, err := PaymentFor(q, delta, b)
	require.NoError(t, err)
	assert.Greater(t, buy, 0.0)

	after := []float64{25, 0, 0, 0}
	sell, err := PaymentFor(after, []float64{-25, 0, 0, 0}, b)
	require.NoError(t, err)
	assert.InDelta(t, -buy, sell, 1e-9)
}

func TestPaymentShapeMismatch(t *testing.T) {
	_, err := PaymentFor([]float64{1, 2, 3}, []float64{0, 0}, 10)
	assert.ErrorIs(t, err, domain.ErrShape)
}

func TestDomainChecks(t *testing.T) {
	tests := []struct {
		name string
		q    []float64
		b    float64
	}{
		{"zero b", []float64{0, 0}, 0},
		{"negative b", []float64{0, 0}, -1},
		{"nan b", []float64{0, 0}, math.NaN()},
		{"empty q", nil, 10},
		{"nan share", []float64{0, math.NaN()}, 10},
		{"inf share", []float64{0, math.Inf(1)}, 10},
		{"underflow spread", []float64{0, 10_000}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Cost(tt.q, tt.b)
			assert.ErrorIs(t, err, domain.ErrDomain)

			_, err = Prices(tt.q, tt.b)
			assert.ErrorIs(t, err, domain.ErrDomain)
		})
	}
}

func TestBidAskBrackets(t *testing.T) {
	q := []float64{30, 0, -15}
	b := 40.0

	quotes, err := BidAsk(q, b)
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	for _, qt := range quotes {
		// Buying one share costs more than the mid, selling yields less:
		// the cost function is convex.
		assert.Greater(t, qt.Ask, qt.Mid)
		assert.Less(t, qt.Bid, qt.Mid)
		assert.Greater(t, qt.Bid, 0.0)
	}
}

func TestMaxLoss(t *testing.T) {
	assert.InDelta(t, 3000*math.Log(10), MaxLoss(10, 3000), 1e-9)
	assert.Zero(t, MaxLoss(0, 3000))
	assert.Zero(t, MaxLoss(10, 0))
}

func TestSharesForCost(t *testing.T) {
	q := []float64{0, 0, 0, 0}
	b := 100.0
	spend := 37.5

	shares, err := SharesForCost(q, b, 1, spend)
	require.NoError(t, err)
	assert.Greater(t, shares, spend) // marginal price below 1

	// Spending the computed shares reproduces the budget.
	pay, err := PaymentFor(q, []float64{0, shares, 0, 0}, b)
	require.NoError(t, err)
	assert.InDelta(t, spend, pay, 1e-6)
}

func TestSharesForCostEdges(t *testing.T) {
	q := []float64{0, 0}

	shares, err := SharesForCost(q, 10, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, shares)

	_, err = SharesForCost(q, 10, 5, 1)
	assert.ErrorIs(t, err, domain.ErrShape)
}
