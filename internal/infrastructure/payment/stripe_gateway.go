// Package payment adapts the Stripe API to the payment.Gateway port.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/meterly/backend/internal/domain/payment"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string
	// WebhookSecret verifies the Stripe-Signature header (whsec_xxx)
	WebhookSecret string
}

// Validate validates the Stripe configuration
func (c StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if !strings.HasPrefix(c.SecretKey, "sk_test_") && !strings.HasPrefix(c.SecretKey, "sk_live_") {
		return fmt.Errorf("stripe: secret key must start with sk_test_ or sk_live_")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("stripe: webhook secret is required")
	}
	return nil
}

// StripeGateway implements payment.Gateway with PaymentIntents
type StripeGateway struct {
	config StripeConfig
	logger *zap.Logger
}

var _ domain.Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a gateway and sets the global Stripe API key
func NewStripeGateway(config StripeConfig, logger *zap.Logger) (*StripeGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	stripe.Key = config.SecretKey

	return &StripeGateway{
		config: config,
		logger: logger.Named("stripe"),
	}, nil
}

// CreatePaymentIntent opens a PaymentIntent. The purchase_id metadata entry,
// when present, doubles as the idempotency key.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, input domain.PaymentIntentInput) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(input.AmountMinor),
		Currency:    stripe.String(strings.ToLower(input.Currency)),
		Description: stripe.String(input.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: input.Metadata,
	}
	if key := input.Metadata["purchase_id"]; key != "" {
		params.SetIdempotencyKey("purchase-" + key)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		g.logger.Error("Failed to create PaymentIntent",
			zap.Int64("amount", input.AmountMinor),
			zap.String("currency", input.Currency),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create payment intent: %w", err)
	}

	g.logger.Info("Created PaymentIntent",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", pi.Amount))

	return &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps PaymentIntent
// outcomes. Other event types come back as WebhookIgnored.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*domain.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("stripe: invalid webhook: %w", err)
	}

	out := &domain.WebhookEvent{ID: event.ID, Type: domain.WebhookIgnored}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("stripe: failed to decode payment intent: %w", err)
		}
		out.ProviderRef = pi.ID
		if event.Type == stripe.EventTypePaymentIntentSucceeded {
			out.Type = domain.WebhookPaymentSucceeded
		} else {
			out.Type = domain.WebhookPaymentFailed
			out.FailureReason = "payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				out.FailureReason = pi.LastPaymentError.Msg
			}
		}
	default:
		g.logger.Debug("Ignoring Stripe event", zap.String("type", string(event.Type)))
	}

	return out, nil
}
