package coupon

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// TypeService administers coupon types
type TypeService struct {
	types  coupon.CouponTypeRepository
	logger *zap.Logger
}

// NewTypeService creates a new TypeService
func NewTypeService(types coupon.CouponTypeRepository, logger *zap.Logger) *TypeService {
	return &TypeService{types: types, logger: logger.Named("coupon_types")}
}

// List returns all coupon types
func (s *TypeService) List(ctx context.Context) ([]coupon.CouponType, error) {
	items, err := s.types.List(ctx)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	return items, nil
}

// Get returns one coupon type
func (s *TypeService) Get(ctx context.Context, id uuid.UUID) (*coupon.CouponType, error) {
	ct, err := s.types.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrap("get", err)
	}
	return ct, nil
}

// Create adds a coupon type, active unless input says otherwise
func (s *TypeService) Create(ctx context.Context, input CouponTypeInput) (*coupon.CouponType, error) {
	ct, err := coupon.NewCouponType(input.Name, input.Description, input.CreditValue)
	if err != nil {
		return nil, err
	}
	if input.Active != nil {
		ct.SetActive(*input.Active)
	}
	if err := s.types.Create(ctx, ct); err != nil {
		return nil, s.wrap("create", err)
	}
	s.logger.Info("Coupon type created", zap.String("name", ct.Name), zap.Int64("credit_value", ct.CreditValue))
	return ct, nil
}

// Update replaces a coupon type definition
func (s *TypeService) Update(ctx context.Context, id uuid.UUID, input CouponTypeInput) (*coupon.CouponType, error) {
	ct, err := s.types.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrap("update", err)
	}
	if err := ct.Update(input.Name, input.Description, input.CreditValue); err != nil {
		return nil, err
	}
	if input.Active != nil {
		ct.SetActive(*input.Active)
	}
	if err := s.types.Update(ctx, ct); err != nil {
		return nil, s.wrap("update", err)
	}
	return ct, nil
}

// Delete removes a coupon type that has never issued a coupon
func (s *TypeService) Delete(ctx context.Context, id uuid.UUID) error {
	used, err := s.types.HasCoupons(ctx, id)
	if err != nil {
		return s.wrap("delete", err)
	}
	if used {
		return shared.NewDomainError(shared.CodeConflict, "Coupon type has issued coupons; deactivate it instead")
	}
	if err := s.types.Delete(ctx, id); err != nil {
		return s.wrap("delete", err)
	}
	return nil
}

func (s *TypeService) wrap(op string, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return errCouponTypeNotFound
	}
	if shared.IsDomainError(err) {
		return err
	}
	s.logger.Error("Coupon type operation failed", zap.String("operation", op), zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, "Failed to process coupon type request")
}
