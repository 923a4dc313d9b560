package payment

import "context"

// PaymentIntentInput describes a charge to open at the gateway
type PaymentIntentInput struct {
	AmountMinor int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// PaymentIntent is the gateway's handle for a pending charge
type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// WebhookEventType is the normalized outcome reported by the gateway
type WebhookEventType string

const (
	WebhookPaymentSucceeded WebhookEventType = "payment_succeeded"
	WebhookPaymentFailed    WebhookEventType = "payment_failed"
	WebhookIgnored          WebhookEventType = "ignored"
)

// WebhookEvent is a verified gateway notification
type WebhookEvent struct {
	ID            string
	Type          WebhookEventType
	ProviderRef   string
	FailureReason string
}

// Gateway is the payment provider collaborator
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (*PaymentIntent, error)
	// ParseWebhook verifies the signature and normalizes the event.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
