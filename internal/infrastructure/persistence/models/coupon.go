package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/coupon"
)

// CouponTypeModel is the persistence model for coupon types.
type CouponTypeModel struct {
	BaseModel
	Name        string `gorm:"type:varchar(100);not null"`
	Description string `gorm:"type:text"`
	CreditValue int64  `gorm:"not null"`
	Active      bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (CouponTypeModel) TableName() string {
	return "coupon_types"
}

// ToDomain converts the persistence model to a domain CouponType.
func (m *CouponTypeModel) ToDomain() *coupon.CouponType {
	return &coupon.CouponType{
		BaseEntity:  m.BaseModel.ToDomain(),
		Name:        m.Name,
		Description: m.Description,
		CreditValue: m.CreditValue,
		Active:      m.Active,
	}
}

// CouponTypeModelFromDomain creates a model from a domain CouponType.
func CouponTypeModelFromDomain(ct *coupon.CouponType) *CouponTypeModel {
	m := &CouponTypeModel{
		Name:        ct.Name,
		Description: ct.Description,
		CreditValue: ct.CreditValue,
		Active:      ct.Active,
	}
	m.FromDomainBaseEntity(ct.BaseEntity)
	return m
}

// CouponModel is the persistence model for coupons.
type CouponModel struct {
	BaseModel
	Code           string        `gorm:"type:varchar(32);not null;uniqueIndex"`
	CouponTypeID   uuid.UUID     `gorm:"type:uuid;not null;index"`
	BoundKind      *string       `gorm:"type:varchar(20)"`
	BoundID        *uuid.UUID    `gorm:"type:uuid;index"`
	Status         coupon.Status `gorm:"type:varchar(20);not null;default:'active';index"`
	ExpiresAt      *time.Time
	RedeemedAt     *time.Time
	RedeemedByKind *string    `gorm:"type:varchar(20)"`
	RedeemedByID   *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (CouponModel) TableName() string {
	return "coupons"
}

// ToDomain converts the persistence model to a domain Coupon.
func (m *CouponModel) ToDomain() *coupon.Coupon {
	return &coupon.Coupon{
		BaseEntity:   m.BaseModel.ToDomain(),
		Code:         m.Code,
		CouponTypeID: m.CouponTypeID,
		BoundTo:      refPtr(m.BoundKind, m.BoundID),
		Status:       m.Status,
		ExpiresAt:    m.ExpiresAt,
		RedeemedAt:   m.RedeemedAt,
		RedeemedBy:   refPtr(m.RedeemedByKind, m.RedeemedByID),
	}
}

// CouponModelFromDomain creates a model from a domain Coupon.
func CouponModelFromDomain(c *coupon.Coupon) *CouponModel {
	m := &CouponModel{
		Code:         c.Code,
		CouponTypeID: c.CouponTypeID,
		Status:       c.Status,
		ExpiresAt:    c.ExpiresAt,
		RedeemedAt:   c.RedeemedAt,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	m.BoundKind, m.BoundID = refColumns(c.BoundTo)
	m.RedeemedByKind, m.RedeemedByID = refColumns(c.RedeemedBy)
	return m
}
