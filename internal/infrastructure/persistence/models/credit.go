package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
)

// CreditTransactionModel is one ledger row. Exactly one of UserID and
// SessionID is set.
type CreditTransactionModel struct {
	ID           uuid.UUID   `gorm:"type:uuid;primary_key"`
	UserID       *uuid.UUID  `gorm:"type:uuid;index:idx_credit_tx_user,priority:1"`
	SessionID    *uuid.UUID  `gorm:"type:uuid;index:idx_credit_tx_session,priority:1"`
	Amount       int64       `gorm:"not null"`
	Kind         credit.Kind `gorm:"type:varchar(30);not null"`
	BalanceAfter int64       `gorm:"not null"`
	Description  string      `gorm:"type:varchar(500)"`
	CreatedAt    time.Time   `gorm:"not null;index:idx_credit_tx_user,priority:2;index:idx_credit_tx_session,priority:2"`
}

// TableName returns the table name for GORM
func (CreditTransactionModel) TableName() string {
	return "credit_transactions"
}

// ToDomain converts the persistence model to a domain Transaction.
func (m *CreditTransactionModel) ToDomain() *credit.Transaction {
	ref := principal.Ref{}
	switch {
	case m.UserID != nil:
		ref = principal.RegisteredRef(*m.UserID)
	case m.SessionID != nil:
		ref = principal.AnonymousRef(*m.SessionID)
	}
	return &credit.Transaction{
		ID:           m.ID,
		Principal:    ref,
		Amount:       m.Amount,
		Kind:         m.Kind,
		BalanceAfter: m.BalanceAfter,
		Description:  m.Description,
		CreatedAt:    m.CreatedAt,
	}
}

// CreditTransactionModelFromDomain creates a ledger row from a domain Transaction.
func CreditTransactionModelFromDomain(t *credit.Transaction) *CreditTransactionModel {
	m := &CreditTransactionModel{
		ID:           t.ID,
		Amount:       t.Amount,
		Kind:         t.Kind,
		BalanceAfter: t.BalanceAfter,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt,
	}
	id := t.Principal.ID
	if t.Principal.Kind == principal.KindRegistered {
		m.UserID = &id
	} else {
		m.SessionID = &id
	}
	return m
}
