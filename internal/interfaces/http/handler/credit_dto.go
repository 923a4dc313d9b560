package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/application/metering"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
)

// GrantCreditsRequest adds credits to a principal
type GrantCreditsRequest struct {
	PrincipalKind principal.Kind `json:"principal_kind" binding:"required,oneof=registered anonymous"`
	PrincipalID   uuid.UUID      `json:"principal_id" binding:"required"`
	Amount        int64          `json:"amount" binding:"required,min=1"`
	Description   string         `json:"description" binding:"max=255"`
}

// BalanceResponse reports a balance
type BalanceResponse struct {
	Principal string `json:"principal"`
	Balance   int64  `json:"balance"`
}

// TransactionResponse is one ledger row
type TransactionResponse struct {
	ID           uuid.UUID   `json:"id"`
	Principal    string      `json:"principal"`
	Amount       int64       `json:"amount"`
	Kind         credit.Kind `json:"kind"`
	BalanceAfter int64       `json:"balance_after"`
	Description  string      `json:"description,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// ActionResponse is the outcome of a metered action
type ActionResponse struct {
	Action   string         `json:"action"`
	Cost     int64          `json:"cost"`
	Balance  int64          `json:"balance"`
	Progress *EventResponse `json:"progress,omitempty"`
}

// ResetResponse reports how many users a reset pass touched
type ResetResponse struct {
	Reset int `json:"reset"`
}

func toTransactionResponse(tx *credit.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:           tx.ID,
		Principal:    tx.Principal.String(),
		Amount:       tx.Amount,
		Kind:         tx.Kind,
		BalanceAfter: tx.BalanceAfter,
		Description:  tx.Description,
		CreatedAt:    tx.CreatedAt,
	}
}

func toActionResponse(r *metering.ActionResult) ActionResponse {
	resp := ActionResponse{Action: r.Action, Cost: r.Cost, Balance: r.Balance}
	if r.Event != nil {
		ev := toEventResponse(r.Event)
		resp.Progress = &ev
	}
	return resp
}
