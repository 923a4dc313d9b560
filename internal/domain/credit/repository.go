package credit

import (
	"context"

	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// BalanceRepository reads and mutates the balance column of principal rows.
// Mutating methods must run inside a transaction.
type BalanceRepository interface {
	GetBalance(ctx context.Context, ref principal.Ref) (int64, error)
	// LockBalance reads the balance holding a row lock until the transaction ends.
	LockBalance(ctx context.Context, ref principal.Ref) (int64, error)
	// Debit subtracts amount only if the balance covers it. ok is false when it does not.
	Debit(ctx context.Context, ref principal.Ref, amount int64) (newBalance int64, ok bool, err error)
	Credit(ctx context.Context, ref principal.Ref, amount int64) (int64, error)
	SetBalance(ctx context.Context, ref principal.Ref, balance int64) error
}

// TransactionRepository is the append-only ledger
type TransactionRepository interface {
	Append(ctx context.Context, tx *Transaction) error
	ListByPrincipal(ctx context.Context, ref principal.Ref, filter shared.Filter) ([]Transaction, int64, error)
	SumByPrincipal(ctx context.Context, ref principal.Ref) (int64, error)
}
