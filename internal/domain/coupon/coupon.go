package coupon

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// Status is the coupon lifecycle state
type Status string

const (
	StatusActive   Status = "active"
	StatusRedeemed Status = "redeemed"
	StatusExpired  Status = "expired"
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusRedeemed || s == StatusExpired
}

// IsTerminal returns true for redeemed and expired
func (s Status) IsTerminal() bool {
	return s == StatusRedeemed || s == StatusExpired
}

// Coupon is a single redeemable instance of a CouponType.
//
// Transitions: active -> redeemed, active -> expired. Expiry is detected
// lazily when someone tries to redeem.
type Coupon struct {
	shared.BaseEntity
	Code         string
	CouponTypeID uuid.UUID
	BoundTo      *principal.Ref
	Status       Status
	ExpiresAt    *time.Time
	RedeemedAt   *time.Time
	RedeemedBy   *principal.Ref
}

// NewCoupon creates an active coupon
func NewCoupon(code string, couponTypeID uuid.UUID, boundTo *principal.Ref, expiresAt *time.Time) (*Coupon, error) {
	code = NormalizeCode(code)
	if !IsWellFormedCode(code) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Malformed coupon code")
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Expiry must be in the future")
	}
	return &Coupon{
		BaseEntity:   shared.NewBaseEntity(),
		Code:         code,
		CouponTypeID: couponTypeID,
		BoundTo:      boundTo,
		Status:       StatusActive,
		ExpiresAt:    expiresAt,
	}, nil
}

// IsExpiredAt reports whether the expiry passed at now
func (c *Coupon) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Redeem runs the redemption checks in order and, when all pass, moves the
// coupon to redeemed.
//
// An active coupon past its expiry moves to expired and ErrCouponExpired is
// returned. The caller must persist that transition before reporting the error.
func (c *Coupon) Redeem(by principal.Ref, now time.Time) error {
	if c.Status != StatusActive {
		return shared.NewDomainError(shared.CodeInvalidState, "Coupon is "+string(c.Status))
	}
	if c.IsExpiredAt(now) {
		c.Status = StatusExpired
		c.UpdatedAt = now
		return shared.ErrCouponExpired
	}
	if c.BoundTo != nil && *c.BoundTo != by {
		return shared.ErrCouponNotOwned
	}
	c.Status = StatusRedeemed
	c.RedeemedAt = &now
	c.RedeemedBy = &by
	c.UpdatedAt = now
	return nil
}
