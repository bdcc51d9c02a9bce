package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
	"github.com/quantish/rangemaker/internal/grid"
)

func scenarioBuckets(t *testing.T) []domain.Bucket {
	t.Helper()
	g, err := grid.New(grid.Config{Min: 5e6, Max: 1e9, Policy: grid.PolicyLogDecade})
	require.NoError(t, err)
	return g.Buckets()
}

func TestImpliedScenarioBasic(t *testing.T) {
	buckets := scenarioBuckets(t)
	// Mass concentrated in the lower buckets with a thin upper tail.
	prices := []float64{0.30, 0.25, 0.20, 0.12, 0.07, 0.04, 0.02}
	require.Len(t, prices, len(buckets))

	sc, err := ImpliedScenario(buckets, prices, 2e8, DefaultScenarioDelta)
	require.NoError(t, err)

	assert.Greater(t, sc.Base, 0.0)
	assert.Less(t, sc.Base, 1.0)
	assert.Greater(t, sc.Sigma, 0.0)
	assert.Greater(t, sc.Alpha, 0.0)

	// A lighter tail index lowers the exceedance, a heavier one raises it.
	assert.GreaterOrEqual(t, sc.Low, sc.Base)
	assert.LessOrEqual(t, sc.High, sc.Base)
}

func TestImpliedScenarioMonotoneInThreshold(t *testing.T) {
	buckets := scenarioBuckets(t)
	prices := []float64{0.30, 0.25, 0.20, 0.12, 0.07, 0.04, 0.02}

	prev := 1.1
	for _, k := range []float64{6e6, 2e7, 8e7, 3e8, 9e8, 5e9} {
		sc, err := ImpliedScenario(buckets, prices, k, DefaultScenarioDelta)
		require.NoError(t, err)
		assert.LessOrEqual(t, sc.Base, prev, "threshold %g", k)
		prev = sc.Base
	}
}

func TestImpliedScenarioNearCertainBelowDomain(t *testing.T) {
	buckets := scenarioBuckets(t)
	prices := []float64{0.30, 0.25, 0.20, 0.12, 0.07, 0.04, 0.02}

	sc, err := ImpliedScenario(buckets, prices, 1e3, DefaultScenarioDelta)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sc.Base, 0.05)
}

func TestImpliedScenarioErrors(t *testing.T) {
	buckets := scenarioBuckets(t)
	prices := []float64{0.30, 0.25, 0.20, 0.12, 0.07, 0.04, 0.02}

	_, err := ImpliedScenario(nil, nil, 1e8, DefaultScenarioDelta)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = ImpliedScenario(buckets, prices[:3], 1e8, DefaultScenarioDelta)
	assert.ErrorIs(t, err, domain.ErrShape)

	_, err = ImpliedScenario(buckets, prices, 0, DefaultScenarioDelta)
	assert.ErrorIs(t, err, domain.ErrDomain)

	_, err = ImpliedScenario(buckets, prices, 1e8, -0.1)
	assert.ErrorIs(t, err, domain.ErrDomain)

	bad := []domain.Bucket{{Low: -10, High: 10, Center: 0, Index: 0}}
	_, err = ImpliedScenario(bad, []float64{1}, 5, DefaultScenarioDelta)
	assert.ErrorIs(t, err, domain.ErrDomain)
}
