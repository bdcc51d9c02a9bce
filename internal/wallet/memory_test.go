package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantish/rangemaker/internal/domain"
)

func TestMemoryCreditDebit(t *testing.T) {
	w := NewMemory()
	ctx := context.Background()

	balance, err := w.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, balance)

	require.NoError(t, w.Credit(ctx, "alice", 100, "funding"))
	require.NoError(t, w.Debit(ctx, "alice", 40, "order:o1"))

	balance, err = w.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 60.0, balance)
}

func TestMemoryInsufficientFunds(t *testing.T) {
	w := NewMemory()
	ctx := context.Background()
	require.NoError(t, w.Credit(ctx, "alice", 10, "funding"))

	err := w.Debit(ctx, "alice", 25, "order:o1")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The failed debit left the balance untouched.
	balance, err := w.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10.0, balance)
}

func TestMemoryRejectsNegativeAmounts(t *testing.T) {
	w := NewMemory()
	ctx := context.Background()

	assert.ErrorIs(t, w.Credit(ctx, "alice", -1, "x"), domain.ErrDomain)
	assert.ErrorIs(t, w.Debit(ctx, "alice", -1, "x"), domain.ErrDomain)
}

func TestMemoryLog(t *testing.T) {
	w := NewMemory()
	ctx := context.Background()
	require.NoError(t, w.Credit(ctx, "alice", 100, "funding"))
	require.NoError(t, w.Debit(ctx, "alice", 30, "order:o1"))

	log := w.Log()
	require.Len(t, log, 2)
	assert.Equal(t, 100.0, log[0].Amount)
	assert.Equal(t, "funding", log[0].Ref)
	assert.Equal(t, -30.0, log[1].Amount)
	assert.Equal(t, "order:o1", log[1].Ref)
}
