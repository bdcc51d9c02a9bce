package domain

import "context"

// Wallet is the external balance collaborator. The engine only ever checks,
// debits and credits; account lifecycle belongs to whoever implements this.
//
// Debit must be called exactly once per filled buy order and Credit exactly
// once per filled sell, atomically with the share-vector commit: if a debit
// fails after the commit was applied, the engine reverts the commit.
type Wallet interface {
	GetBalance(ctx context.Context, user string) (float64, error)
	// Debit removes amount from the user's balance. It returns
	// ErrInsufficientFunds when the balance cannot cover it.
	Debit(ctx context.Context, user string, amount float64, ref string) error
	Credit(ctx context.Context, user string, amount float64, ref string) error
}
