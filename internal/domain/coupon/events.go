package coupon

import (
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// EventCouponRedeemed is published after a redemption commits
const EventCouponRedeemed = "coupon_redeemed"

// RedeemedEvent notifies integrations of a redemption
type RedeemedEvent struct {
	shared.BaseDomainEvent
	Code          string         `json:"code"`
	CouponTypeID  string         `json:"coupon_type_id"`
	CreditValue   int64          `json:"credit_value"`
	PrincipalKind principal.Kind `json:"principal_kind"`
	PrincipalID   string         `json:"principal_id"`
}

// NewRedeemedEvent creates a coupon_redeemed notification
func NewRedeemedEvent(c *Coupon, creditValue int64) *RedeemedEvent {
	e := &RedeemedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventCouponRedeemed, "Coupon", c.ID),
		Code:            c.Code,
		CouponTypeID:    c.CouponTypeID.String(),
		CreditValue:     creditValue,
	}
	if c.RedeemedBy != nil {
		e.PrincipalKind = c.RedeemedBy.Kind
		e.PrincipalID = c.RedeemedBy.ID.String()
	}
	return e
}
