package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PurchaseStatus is the purchase lifecycle state
type PurchaseStatus string

const (
	PurchaseStatusPending PurchaseStatus = "pending"
	PurchaseStatusPaid    PurchaseStatus = "paid"
	PurchaseStatusFailed  PurchaseStatus = "failed"
)

// Purchase records a registered user buying a credit package. Credits are
// granted exactly once, when the purchase turns paid.
type Purchase struct {
	shared.BaseEntity
	UserID      uuid.UUID
	PackageID   uuid.UUID
	Credits     int64
	Amount      decimal.Decimal
	Currency    string
	Status      PurchaseStatus
	ProviderRef string
	PaidAt      *time.Time
	FailureMsg  string
}

// NewPurchase snapshots the package price for userID
func NewPurchase(userID uuid.UUID, pkg *CreditPackage) (*Purchase, error) {
	if !pkg.Active {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Credit package is not available")
	}
	return &Purchase{
		BaseEntity: shared.NewBaseEntity(),
		UserID:     userID,
		PackageID:  pkg.ID,
		Credits:    pkg.Credits,
		Amount:     pkg.Price,
		Currency:   pkg.Currency,
		Status:     PurchaseStatusPending,
	}, nil
}

// AttachProviderRef links the gateway's payment id
func (p *Purchase) AttachProviderRef(ref string) {
	p.ProviderRef = ref
	p.Touch()
}

// MarkPaid moves a pending or failed purchase to paid. A failed intent can
// still succeed when the customer retries with another card.
func (p *Purchase) MarkPaid(at time.Time) error {
	if p.Status == PurchaseStatusPaid {
		return shared.NewDomainError(shared.CodeInvalidState, "Purchase is already paid")
	}
	p.Status = PurchaseStatusPaid
	p.PaidAt = &at
	p.FailureMsg = ""
	p.UpdatedAt = at
	return nil
}

// MarkFailed moves a pending purchase to failed
func (p *Purchase) MarkFailed(reason string) error {
	if p.Status != PurchaseStatusPending {
		return shared.NewDomainError(shared.CodeInvalidState, "Purchase is "+string(p.Status))
	}
	p.Status = PurchaseStatusFailed
	p.FailureMsg = reason
	p.Touch()
	return nil
}
