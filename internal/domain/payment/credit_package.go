// Package payment models credit packages and their purchases.
package payment

import (
	"strings"

	"github.com/meterly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CreditPackage is a purchasable bundle of credits
type CreditPackage struct {
	shared.BaseEntity
	Name     string
	Credits  int64
	Price    decimal.Decimal
	Currency string
	Active   bool
}

// NewCreditPackage creates an active package
func NewCreditPackage(name string, credits int64, price decimal.Decimal, currency string) (*CreditPackage, error) {
	p := &CreditPackage{BaseEntity: shared.NewBaseEntity(), Active: true}
	if err := p.Update(name, credits, price, currency); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces the package definition
func (p *CreditPackage) Update(name string, credits int64, price decimal.Decimal, currency string) error {
	name = strings.TrimSpace(name)
	currency = strings.ToLower(strings.TrimSpace(currency))
	if name == "" || len(name) > 100 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Package name must be 1-100 characters")
	}
	if credits <= 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Package credits must be positive")
	}
	if !price.IsPositive() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Package price must be positive")
	}
	if price.Exponent() < -2 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Package price supports at most 2 decimal places")
	}
	if len(currency) != 3 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Currency must be an ISO 4217 code")
	}
	p.Name = name
	p.Credits = credits
	p.Price = price
	p.Currency = currency
	p.Touch()
	return nil
}

// SetActive toggles whether the package can be bought
func (p *CreditPackage) SetActive(active bool) {
	p.Active = active
	p.Touch()
}

// MinorUnits returns the price in the currency's smallest unit (cents)
func (p *CreditPackage) MinorUnits() int64 {
	return p.Price.Shift(2).Round(0).IntPart()
}
