package coupon

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/principal"
)

// IssueInput describes a coupon to issue. BoundTo and ExpiresAt are optional.
type IssueInput struct {
	CouponTypeID uuid.UUID
	BoundTo      *principal.Ref
	ExpiresAt    *time.Time
}

// RedeemResult is the outcome of a successful redemption
type RedeemResult struct {
	Coupon      *coupon.Coupon
	CreditValue int64
	Balance     int64
}

// CouponTypeInput creates or replaces a coupon type
type CouponTypeInput struct {
	Name        string
	Description string
	CreditValue int64
	Active      *bool
}
