package coupon

import (
	"context"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// CouponTypeRepository persists coupon types
type CouponTypeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*CouponType, error)
	List(ctx context.Context) ([]CouponType, error)
	Create(ctx context.Context, ct *CouponType) error
	Update(ctx context.Context, ct *CouponType) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasCoupons(ctx context.Context, id uuid.UUID) (bool, error)
}

// Filter narrows coupon listings
type Filter struct {
	shared.Filter
	Status       Status
	CouponTypeID *uuid.UUID
}

// CouponRepository persists coupons
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindByCodeForUpdate locks the coupon row until the transaction ends.
	FindByCodeForUpdate(ctx context.Context, code string) (*Coupon, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, c *Coupon) error
	// Transition moves the coupon from the from status to c.Status. ok is
	// false if another writer changed the status first.
	Transition(ctx context.Context, c *Coupon, from Status) (ok bool, err error)
	List(ctx context.Context, filter Filter) ([]Coupon, int64, error)
	ListByPrincipal(ctx context.Context, ref principal.Ref) ([]Coupon, error)
}
