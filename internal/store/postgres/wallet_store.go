package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantish/rangemaker/internal/domain"
)

// WalletStore implements domain.Wallet on PostgreSQL. Each balance change
// locks the account row, applies the delta and appends a wallet_tx entry in
// one transaction, so concurrent debits cannot overdraw.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// GetBalance returns the user's balance; unknown users hold zero.
func (s *WalletStore) GetBalance(ctx context.Context, user string) (float64, error) {
	var balance float64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM wallet_accounts WHERE user_id = $1`, user,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: get balance for %s: %w", user, err)
	}
	return balance, nil
}

// Credit adds amount to the user's balance, creating the account if needed.
func (s *WalletStore) Credit(ctx context.Context, user string, amount float64, ref string) error {
	if amount < 0 {
		return fmt.Errorf("postgres: credit amount %g must be non-negative: %w", amount, domain.ErrDomain)
	}
	return s.apply(ctx, user, amount, ref)
}

// Debit removes amount from the user's balance, failing with
// ErrInsufficientFunds when it cannot be covered.
func (s *WalletStore) Debit(ctx context.Context, user string, amount float64, ref string) error {
	if amount < 0 {
		return fmt.Errorf("postgres: debit amount %g must be non-negative: %w", amount, domain.ErrDomain)
	}
	return s.apply(ctx, user, -amount, ref)
}

func (s *WalletStore) apply(ctx context.Context, user string, delta float64, ref string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin wallet tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO wallet_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		user); err != nil {
		return fmt.Errorf("postgres: ensure account %s: %w", user, err)
	}

	var balance float64
	if err := tx.QueryRow(ctx,
		`SELECT balance FROM wallet_accounts WHERE user_id = $1 FOR UPDATE`,
		user).Scan(&balance); err != nil {
		return fmt.Errorf("postgres: lock account %s: %w", user, err)
	}

	next := balance + delta
	if next < 0 {
		return fmt.Errorf("postgres: balance %.4f below debit %.4f for %s: %w",
			balance, -delta, user, domain.ErrInsufficientFunds)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallet_accounts SET balance = $1, updated_at = NOW() WHERE user_id = $2`,
		next, user); err != nil {
		return fmt.Errorf("postgres: update balance for %s: %w", user, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO wallet_tx (user_id, amount, ref) VALUES ($1, $2, $3)`,
		user, delta, ref); err != nil {
		return fmt.Errorf("postgres: record wallet tx for %s: %w", user, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit wallet tx: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Wallet = (*WalletStore)(nil)
