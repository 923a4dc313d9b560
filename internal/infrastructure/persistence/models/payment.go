package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// CreditPackageModel is the persistence model for purchasable credit packages.
type CreditPackageModel struct {
	BaseModel
	Name     string          `gorm:"type:varchar(100);not null"`
	Credits  int64           `gorm:"not null"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"type:varchar(3);not null"`
	Active   bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (CreditPackageModel) TableName() string {
	return "credit_packages"
}

// ToDomain converts the persistence model to a domain CreditPackage.
func (m *CreditPackageModel) ToDomain() *payment.CreditPackage {
	return &payment.CreditPackage{
		BaseEntity: m.BaseModel.ToDomain(),
		Name:       m.Name,
		Credits:    m.Credits,
		Price:      m.Price,
		Currency:   m.Currency,
		Active:     m.Active,
	}
}

// CreditPackageModelFromDomain creates a model from a domain CreditPackage.
func CreditPackageModelFromDomain(p *payment.CreditPackage) *CreditPackageModel {
	m := &CreditPackageModel{
		Name:     p.Name,
		Credits:  p.Credits,
		Price:    p.Price,
		Currency: p.Currency,
		Active:   p.Active,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}

// PurchaseModel is the persistence model for credit purchases.
type PurchaseModel struct {
	BaseModel
	UserID      uuid.UUID              `gorm:"type:uuid;not null;index"`
	PackageID   uuid.UUID              `gorm:"type:uuid;not null"`
	Credits     int64                  `gorm:"not null"`
	Amount      decimal.Decimal        `gorm:"type:decimal(12,2);not null"`
	Currency    string                 `gorm:"type:varchar(3);not null"`
	Status      payment.PurchaseStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	ProviderRef *string                `gorm:"type:varchar(255);uniqueIndex"`
	PaidAt      *time.Time
	FailureMsg  string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PurchaseModel) TableName() string {
	return "purchases"
}

// ToDomain converts the persistence model to a domain Purchase.
func (m *PurchaseModel) ToDomain() *payment.Purchase {
	p := &payment.Purchase{
		BaseEntity: m.BaseModel.ToDomain(),
		UserID:     m.UserID,
		PackageID:  m.PackageID,
		Credits:    m.Credits,
		Amount:     m.Amount,
		Currency:   m.Currency,
		Status:     m.Status,
		PaidAt:     m.PaidAt,
		FailureMsg: m.FailureMsg,
	}
	if m.ProviderRef != nil {
		p.ProviderRef = *m.ProviderRef
	}
	return p
}

// PurchaseModelFromDomain creates a model from a domain Purchase.
// An empty provider ref is stored as NULL so the unique index ignores it.
func PurchaseModelFromDomain(p *payment.Purchase) *PurchaseModel {
	m := &PurchaseModel{
		UserID:     p.UserID,
		PackageID:  p.PackageID,
		Credits:    p.Credits,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     p.Status,
		PaidAt:     p.PaidAt,
		FailureMsg: p.FailureMsg,
	}
	if p.ProviderRef != "" {
		ref := p.ProviderRef
		m.ProviderRef = &ref
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}
