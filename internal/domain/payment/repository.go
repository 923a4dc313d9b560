package payment

import (
	"context"

	"github.com/google/uuid"
)

// PackageRepository persists credit packages
type PackageRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*CreditPackage, error)
	List(ctx context.Context, activeOnly bool) ([]CreditPackage, error)
	Create(ctx context.Context, p *CreditPackage) error
	Update(ctx context.Context, p *CreditPackage) error
}

// PurchaseRepository persists purchases
type PurchaseRepository interface {
	Create(ctx context.Context, p *Purchase) error
	Update(ctx context.Context, p *Purchase) error
	// FindByProviderRefForUpdate locks the purchase row until the transaction ends.
	FindByProviderRefForUpdate(ctx context.Context, ref string) (*Purchase, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Purchase, error)
}
