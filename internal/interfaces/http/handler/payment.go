package handler

import (
	"github.com/gin-gonic/gin"
	paymentapp "github.com/meterly/backend/internal/application/payment"
	"github.com/meterly/backend/internal/interfaces/http/middleware"
)

// PaymentHandler serves credit packages and purchases
type PaymentHandler struct {
	BaseHandler
	payments *paymentapp.Service
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *paymentapp.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// ListPackages godoc
// @Summary      List credit packages
// @Tags         payments
// @Produce      json
// @Success      200 {object} dto.Response{data=[]CreditPackageResponse}
// @Router       /payments/packages [get]
func (h *PaymentHandler) ListPackages(c *gin.Context) {
	h.listPackages(c, true)
}

// ListAllPackages godoc
// @Summary      List credit packages including inactive ones
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=[]CreditPackageResponse}
// @Security     BearerAuth
// @Router       /admin/packages [get]
func (h *PaymentHandler) ListAllPackages(c *gin.Context) {
	var req PackageListQuery
	if !h.bindQuery(c, &req) {
		return
	}
	h.listPackages(c, !req.IncludeInactive)
}

func (h *PaymentHandler) listPackages(c *gin.Context, activeOnly bool) {
	packages, err := h.payments.ListPackages(c.Request.Context(), activeOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, mapSlice(packages, toCreditPackageResponse))
}

// CreatePackage godoc
// @Summary      Create a credit package
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body CreditPackageRequest true "Package"
// @Success      201 {object} dto.Response{data=CreditPackageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/packages [post]
func (h *PaymentHandler) CreatePackage(c *gin.Context) {
	var req CreditPackageRequest
	if !h.bindJSON(c, &req) {
		return
	}

	pkg, err := h.payments.CreatePackage(c.Request.Context(), toCreditPackageInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toCreditPackageResponse(pkg))
}

// UpdatePackage godoc
// @Summary      Update a credit package
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id path string true "Package ID"
// @Param        request body CreditPackageRequest true "Package"
// @Success      200 {object} dto.Response{data=CreditPackageResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/packages/{id} [put]
func (h *PaymentHandler) UpdatePackage(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req CreditPackageRequest
	if !h.bindJSON(c, &req) {
		return
	}

	pkg, err := h.payments.UpdatePackage(c.Request.Context(), id, toCreditPackageInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toCreditPackageResponse(pkg))
}

// CreatePurchase godoc
// @Summary      Buy a credit package
// @Description  Creates a pending purchase and a PaymentIntent. Credits are granted when Stripe confirms the payment.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body CreatePurchaseRequest true "Package to buy"
// @Success      201 {object} dto.Response{data=CreatePurchaseResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /payments/purchases [post]
func (h *PaymentHandler) CreatePurchase(c *gin.Context) {
	var req CreatePurchaseRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.payments.CreatePurchase(c.Request.Context(), middleware.GetPrincipalRef(c).ID, req.PackageID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, CreatePurchaseResponse{
		Purchase:     toPurchaseResponse(result.Purchase),
		ClientSecret: result.ClientSecret,
	})
}

// ListPurchases godoc
// @Summary      Purchases of the caller
// @Tags         payments
// @Produce      json
// @Success      200 {object} dto.Response{data=[]PurchaseResponse}
// @Security     BearerAuth
// @Router       /payments/purchases [get]
func (h *PaymentHandler) ListPurchases(c *gin.Context) {
	purchases, err := h.payments.ListPurchases(c.Request.Context(), middleware.GetPrincipalRef(c).ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, mapSlice(purchases, toPurchaseResponse))
}
