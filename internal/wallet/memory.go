// Package wallet provides play-money balance implementations of
// domain.Wallet. The engine treats the wallet as an external collaborator:
// it only checks, debits and credits.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantish/rangemaker/internal/domain"
)

// TxEntry is one row of the in-memory transaction log.
type TxEntry struct {
	User   string
	Amount float64 // positive credit, negative debit
	Ref    string
	At     time.Time
}

// Memory is an in-memory wallet for tests and local single-process mode.
// Balances start at zero; use Credit to fund accounts.
type Memory struct {
	mu       sync.Mutex
	balances map[string]float64
	log      []TxEntry
}

// NewMemory creates an empty in-memory wallet.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]float64)}
}

// GetBalance returns the user's balance; unknown users hold zero.
func (w *Memory) GetBalance(_ context.Context, user string) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[user], nil
}

// Credit adds amount to the user's balance.
func (w *Memory) Credit(_ context.Context, user string, amount float64, ref string) error {
	if amount < 0 {
		return fmt.Errorf("wallet: credit amount %g must be non-negative: %w", amount, domain.ErrDomain)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[user] += amount
	w.log = append(w.log, TxEntry{User: user, Amount: amount, Ref: ref, At: time.Now().UTC()})
	return nil
}

// Debit removes amount from the user's balance, failing with
// ErrInsufficientFunds when it cannot be covered.
func (w *Memory) Debit(_ context.Context, user string, amount float64, ref string) error {
	if amount < 0 {
		return fmt.Errorf("wallet: debit amount %g must be non-negative: %w", amount, domain.ErrDomain)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[user] < amount {
		return fmt.Errorf("wallet: balance %.4f below debit %.4f for %s: %w",
			w.balances[user], amount, user, domain.ErrInsufficientFunds)
	}
	w.balances[user] -= amount
	w.log = append(w.log, TxEntry{User: user, Amount: -amount, Ref: ref, At: time.Now().UTC()})
	return nil
}

// Log returns a copy of the transaction log.
func (w *Memory) Log() []TxEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]TxEntry, len(w.log))
	copy(out, w.log)
	return out
}

// Compile-time interface check.
var _ domain.Wallet = (*Memory)(nil)
