package handler

import (
	"time"

	"github.com/google/uuid"
	couponapp "github.com/meterly/backend/internal/application/coupon"
	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/interfaces/http/dto"
)

// RedeemCouponRequest redeems a coupon code for the caller
type RedeemCouponRequest struct {
	Code string `json:"code" binding:"required,coupon_code"`
}

// IssueCouponRequest issues a coupon of a type. Binding and expiry are optional.
type IssueCouponRequest struct {
	CouponTypeID uuid.UUID      `json:"coupon_type_id" binding:"required"`
	BoundKind    principal.Kind `json:"bound_kind" binding:"omitempty,oneof=registered anonymous"`
	BoundID      *uuid.UUID     `json:"bound_id"`
	ExpiresAt    *time.Time     `json:"expires_at"`
}

// CouponListQuery filters the admin coupon listing
type CouponListQuery struct {
	dto.ListRequest
	Status       coupon.Status `form:"status" binding:"omitempty,oneof=active redeemed expired"`
	CouponTypeID string        `form:"coupon_type_id" binding:"omitempty,uuid"`
}

// CouponTypeRequest creates or replaces a coupon type
type CouponTypeRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=500"`
	CreditValue int64  `json:"credit_value" binding:"required,min=1"`
	Active      *bool  `json:"active"`
}

// CouponResponse is an issued coupon
type CouponResponse struct {
	ID           uuid.UUID     `json:"id"`
	Code         string        `json:"code"`
	CouponTypeID uuid.UUID     `json:"coupon_type_id"`
	BoundTo      string        `json:"bound_to,omitempty"`
	Status       coupon.Status `json:"status"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	RedeemedAt   *time.Time    `json:"redeemed_at,omitempty"`
	RedeemedBy   string        `json:"redeemed_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RedeemResponse is the outcome of a redemption
type RedeemResponse struct {
	Coupon      CouponResponse `json:"coupon"`
	CreditValue int64          `json:"credit_value"`
	Balance     int64          `json:"balance"`
}

// CouponTypeResponse is a coupon type
type CouponTypeResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreditValue int64     `json:"credit_value"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCouponResponse(c *coupon.Coupon) CouponResponse {
	resp := CouponResponse{
		ID:           c.ID,
		Code:         c.Code,
		CouponTypeID: c.CouponTypeID,
		Status:       c.Status,
		ExpiresAt:    c.ExpiresAt,
		RedeemedAt:   c.RedeemedAt,
		CreatedAt:    c.CreatedAt,
	}
	if c.BoundTo != nil {
		resp.BoundTo = c.BoundTo.String()
	}
	if c.RedeemedBy != nil {
		resp.RedeemedBy = c.RedeemedBy.String()
	}
	return resp
}

func toRedeemResponse(r *couponapp.RedeemResult) RedeemResponse {
	return RedeemResponse{
		Coupon:      toCouponResponse(r.Coupon),
		CreditValue: r.CreditValue,
		Balance:     r.Balance,
	}
}

func toCouponTypeResponse(ct *coupon.CouponType) CouponTypeResponse {
	return CouponTypeResponse{
		ID:          ct.ID,
		Name:        ct.Name,
		Description: ct.Description,
		CreditValue: ct.CreditValue,
		Active:      ct.Active,
		CreatedAt:   ct.CreatedAt,
		UpdatedAt:   ct.UpdatedAt,
	}
}
