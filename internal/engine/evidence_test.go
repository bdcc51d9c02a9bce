package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
)

func TestApplyEvidenceFullConfidence(t *testing.T) {
	m := newTestMarket(t, 3000)
	pYes := []float64{0.98, 0.01, 0.01}
	pNo := []float64{0.2, 0.4, 0.4}

	_, err := m.ApplyEvidence(context.Background(), pYes, pNo, 1, 0)
	require.NoError(t, err)

	// With confidence 1 and no boost the market lands on the yes
	// distribution.
	for i, p := range m.Snapshot().Prices {
		assert.InDelta(t, pYes[i], p, 1e-6)
	}
	// Evidence shifts are the maker's own book; no cash moves.
	assert.Zero(t, m.Snapshot().NetCash)
}

func TestApplyEvidenceZeroConfidence(t *testing.T) {
	m := newTestMarket(t, 3000)
	pYes := []float64{0.98, 0.01, 0.01}
	pNo := []float64{0.2, 0.4, 0.4}

	_, err := m.ApplyEvidence(context.Background(), pYes, pNo, 0, 0)
	require.NoError(t, err)

	for i, p := range m.Snapshot().Prices {
		assert.InDelta(t, pNo[i], p, 1e-6)
	}
}

func TestEvidenceDeltaErrors(t *testing.T) {
	p := []float64{0.5, 0.5}

	_, err := EvidenceDelta(p, p, p, -0.1, 100, 0)
	assert.ErrorIs(t, err, domain.ErrDomain)

	_, err = EvidenceDelta(p, p, p, 1.1, 100, 0)
	assert.ErrorIs(t, err, domain.ErrDomain)

	_, err = EvidenceDelta(p, p, p, 0.5, 0, 0)
	assert.ErrorIs(t, err, domain.ErrDomain)

	_, err = EvidenceDelta(p, []float64{1}, p, 0.5, 100, 0)
	assert.ErrorIs(t, err, domain.ErrShape)
}

func TestEvidenceBoostStrengthensYes(t *testing.T) {
	p := []float64{0.5, 0.5}
	pYes := []float64{0.7, 0.3}
	pNo := []float64{0.5, 0.5}

	plain, err := EvidenceDelta(p, pYes, pNo, 1, 100, 0)
	require.NoError(t, err)
	boosted, err := EvidenceDelta(p, pYes, pNo, 1, 100, DefaultEvidenceBoost)
	require.NoError(t, err)

	// Boosting the yes odds pushes the favored bucket harder.
	assert.Greater(t, boosted[0], plain[0])
}

func TestContractWeights(t *testing.T) {
	buckets := []domain.Bucket{
		{Low: 0, High: 100, Center: 50, Index: 0},
		{Low: 100, High: 200, Center: 150, Index: 1},
		{Low: 200, High: 300, Center: 250, Index: 2},
	}

	w, err := ContractWeights(buckets, domain.ContractBucket, 150)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, w)

	// Out-of-range targets clamp to the end buckets.
	w, err = ContractWeights(buckets, domain.ContractBucket, -10)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, w)
	w, err = ContractWeights(buckets, domain.ContractBucket, 900)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, w)

	// Above: full weight above the threshold, linear share in the straddled
	// bucket.
	w, err = ContractWeights(buckets, domain.ContractAbove, 150)
	require.NoError(t, err)
	assert.Equal(t, 0.0, w[0])
	assert.InDelta(t, 0.5, w[1], 1e-12)
	assert.Equal(t, 1.0, w[2])

	// Below is the complement.
	w, err = ContractWeights(buckets, domain.ContractBelow, 150)
	require.NoError(t, err)
	assert.Equal(t, 1.0, w[0])
	assert.InDelta(t, 0.5, w[1], 1e-12)
	assert.Equal(t, 0.0, w[2])

	_, err = ContractWeights(buckets, domain.ContractKind("spread"), 150)
	assert.ErrorIs(t, err, domain.ErrDomain)

	_, err = ContractWeights(nil, domain.ContractBucket, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
