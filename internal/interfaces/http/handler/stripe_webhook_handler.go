package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentapp "github.com/meterly/backend/internal/application/payment"
	"github.com/meterly/backend/internal/interfaces/http/dto"
)

// Maximum webhook payload size (64KB - Stripe webhooks are typically small)
const maxWebhookPayloadSize = 65536

// StripeSignatureHeader carries the webhook signature
const StripeSignatureHeader = "Stripe-Signature"

// StripeWebhookHandler receives Stripe notifications. It is called by Stripe
// and authenticated by the signature only.
type StripeWebhookHandler struct {
	BaseHandler
	payments *paymentapp.Service
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(payments *paymentapp.Service) *StripeWebhookHandler {
	return &StripeWebhookHandler{payments: payments}
}

// StripeWebhookResponse acknowledges a webhook
type StripeWebhookResponse struct {
	Received bool `json:"received" example:"true"`
}

// HandleStripeWebhook godoc
//
//	@ID				handleStripeWebhook
//	@Summary		Handle Stripe webhook
//	@Description	Settle or fail purchases from PaymentIntent events. Processing errors answer 500 so Stripe retries.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			Stripe-Signature	header		string					true	"Stripe webhook signature"
//	@Success		200					{object}	StripeWebhookResponse	"Webhook processed"
//	@Failure		400					{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		413					{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		500					{object}	dto.Response{error=dto.ErrorInfo}
//	@Router			/payments/stripe/webhook [post]
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Stripe requires the raw body for signature verification
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Payload too large")
		return
	}

	signature := c.GetHeader(StripeSignatureHeader)
	if signature == "" {
		h.BadRequest(c, "Missing Stripe-Signature header")
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, StripeWebhookResponse{Received: true})
}
