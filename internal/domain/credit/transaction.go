// Package credit holds the ledger model of the credit accounting engine.
package credit

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// Kind classifies a ledger row
type Kind string

const (
	KindUsage            Kind = "usage"
	KindPurchase         Kind = "purchase"
	KindReset            Kind = "reset"
	KindCouponRedemption Kind = "coupon_redemption"
	KindGrant            Kind = "grant"
	KindInitial          Kind = "initial"
)

// IsValid checks if the kind is valid
func (k Kind) IsValid() bool {
	switch k {
	case KindUsage, KindPurchase, KindReset, KindCouponRedemption, KindGrant, KindInitial:
		return true
	}
	return false
}

// String returns the string representation
func (k Kind) String() string {
	return string(k)
}

const maxDescriptionLength = 500

// Transaction is an immutable ledger row. Amount is signed: debits are
// negative. The sum of a principal's rows equals its balance.
type Transaction struct {
	ID           uuid.UUID
	Principal    principal.Ref
	Amount       int64
	Kind         Kind
	BalanceAfter int64
	Description  string
	CreatedAt    time.Time
}

// NewDebit records a charge of amount (> 0)
func NewDebit(ref principal.Ref, amount int64, kind Kind, description string, balanceAfter int64) (*Transaction, error) {
	if amount <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Charge amount must be positive")
	}
	return newTransaction(ref, -amount, kind, description, balanceAfter)
}

// NewCredit records a grant of amount (> 0)
func NewCredit(ref principal.Ref, amount int64, kind Kind, description string, balanceAfter int64) (*Transaction, error) {
	if amount <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Grant amount must be positive")
	}
	return newTransaction(ref, amount, kind, description, balanceAfter)
}

// NewReset records a balance reset from previous to next. The amount is the delta.
func NewReset(ref principal.Ref, previous, next int64, description string) (*Transaction, error) {
	if next < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Reset balance cannot be negative")
	}
	return newTransaction(ref, next-previous, KindReset, description, next)
}

func newTransaction(ref principal.Ref, amount int64, kind Kind, description string, balanceAfter int64) (*Transaction, error) {
	if !ref.Kind.IsValid() || ref.ID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Transaction requires a principal")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Invalid transaction kind")
	}
	if balanceAfter < 0 {
		return nil, shared.ErrInsufficientCredits
	}
	return &Transaction{
		ID:           uuid.New(),
		Principal:    ref,
		Amount:       amount,
		Kind:         kind,
		BalanceAfter: balanceAfter,
		Description:  truncateDescription(description),
		CreatedAt:    time.Now(),
	}, nil
}

// truncateDescription cuts s to at most maxDescriptionLength bytes without
// splitting a UTF-8 sequence
func truncateDescription(s string) string {
	if len(s) <= maxDescriptionLength {
		return s
	}
	end := maxDescriptionLength
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

// IsDebit returns true for rows that reduced the balance
func (t *Transaction) IsDebit() bool {
	return t.Amount < 0
}
