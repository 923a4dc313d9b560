// Package coupon models single-use credit grants.
package coupon

import (
	"strings"

	"github.com/meterly/backend/internal/domain/shared"
)

// CouponType defines how many credits its coupons are worth
type CouponType struct {
	shared.BaseEntity
	Name        string
	Description string
	CreditValue int64
	Active      bool
}

// NewCouponType creates an active coupon type
func NewCouponType(name, description string, creditValue int64) (*CouponType, error) {
	ct := &CouponType{BaseEntity: shared.NewBaseEntity(), Active: true}
	if err := ct.Update(name, description, creditValue); err != nil {
		return nil, err
	}
	return ct, nil
}

// Update changes the definition. Already issued coupons pick up the new value on redemption.
func (ct *CouponType) Update(name, description string, creditValue int64) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Coupon type name must be 1-100 characters")
	}
	if creditValue <= 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Credit value must be positive")
	}
	ct.Name = name
	ct.Description = strings.TrimSpace(description)
	ct.CreditValue = creditValue
	ct.Touch()
	return nil
}

// SetActive toggles whether new coupons can be issued
func (ct *CouponType) SetActive(active bool) {
	ct.Active = active
	ct.Touch()
}
