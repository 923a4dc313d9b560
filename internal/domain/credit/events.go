package credit

import (
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// Webhook event names published after a balance change commits
const (
	EventCreditUsage = "credit_usage"
	EventCreditGrant = "credit_grant"
	EventCreditReset = "credit_reset"
)

// AggregateTypePrincipal is the aggregate type of balance events
const AggregateTypePrincipal = "Principal"

// BalanceChangedEvent is published after a committed balance change
type BalanceChangedEvent struct {
	shared.BaseDomainEvent
	PrincipalKind principal.Kind `json:"principal_kind"`
	PrincipalID   string         `json:"principal_id"`
	Amount        int64          `json:"amount"`
	Kind          Kind           `json:"kind"`
	BalanceAfter  int64          `json:"balance_after"`
	Description   string         `json:"description,omitempty"`
}

// NewBalanceChangedEvent derives the event name from the ledger row
func NewBalanceChangedEvent(tx *Transaction) *BalanceChangedEvent {
	name := EventCreditGrant
	switch {
	case tx.Kind == KindReset:
		name = EventCreditReset
	case tx.IsDebit():
		name = EventCreditUsage
	}
	return &BalanceChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(name, AggregateTypePrincipal, tx.Principal.ID),
		PrincipalKind:   tx.Principal.Kind,
		PrincipalID:     tx.Principal.ID.String(),
		Amount:          tx.Amount,
		Kind:            tx.Kind,
		BalanceAfter:    tx.BalanceAfter,
		Description:     tx.Description,
	}
}
