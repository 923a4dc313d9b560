package handler

import (
	"time"

	"github.com/google/uuid"
	paymentapp "github.com/meterly/backend/internal/application/payment"
	"github.com/meterly/backend/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// PackageListQuery lets admins include inactive packages
type PackageListQuery struct {
	IncludeInactive bool `form:"include_inactive"`
}

// CreditPackageRequest creates or replaces a credit package. price is a
// decimal string or number in major units.
type CreditPackageRequest struct {
	Name     string          `json:"name" binding:"required,max=100"`
	Credits  int64           `json:"credits" binding:"required,min=1"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency" binding:"required,len=3"`
	Active   *bool           `json:"active"`
}

// CreatePurchaseRequest starts buying a package
type CreatePurchaseRequest struct {
	PackageID uuid.UUID `json:"package_id" binding:"required"`
}

// CreditPackageResponse is a purchasable credit package
type CreditPackageResponse struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Credits  int64           `json:"credits"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Active   bool            `json:"active"`
}

// PurchaseResponse is a purchase and its payment state
type PurchaseResponse struct {
	ID         uuid.UUID              `json:"id"`
	PackageID  uuid.UUID              `json:"package_id"`
	Credits    int64                  `json:"credits"`
	Amount     decimal.Decimal        `json:"amount"`
	Currency   string                 `json:"currency"`
	Status     payment.PurchaseStatus `json:"status"`
	PaidAt     *time.Time             `json:"paid_at,omitempty"`
	FailureMsg string                 `json:"failure_message,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// CreatePurchaseResponse carries the client secret to confirm the payment
type CreatePurchaseResponse struct {
	Purchase     PurchaseResponse `json:"purchase"`
	ClientSecret string           `json:"client_secret"`
}

func toCreditPackageResponse(p *payment.CreditPackage) CreditPackageResponse {
	return CreditPackageResponse{
		ID:       p.ID,
		Name:     p.Name,
		Credits:  p.Credits,
		Price:    p.Price,
		Currency: p.Currency,
		Active:   p.Active,
	}
}

func toPurchaseResponse(p *payment.Purchase) PurchaseResponse {
	return PurchaseResponse{
		ID:         p.ID,
		PackageID:  p.PackageID,
		Credits:    p.Credits,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     p.Status,
		PaidAt:     p.PaidAt,
		FailureMsg: p.FailureMsg,
		CreatedAt:  p.CreatedAt,
	}
}

func toCreditPackageInput(req CreditPackageRequest) paymentapp.PackageInput {
	return paymentapp.PackageInput{
		Name:     req.Name,
		Credits:  req.Credits,
		Price:    req.Price,
		Currency: req.Currency,
		Active:   req.Active,
	}
}
