package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domain "github.com/meterly/backend/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/form"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// mockBackend implements stripe.Backend for testing
type mockBackend struct {
	handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)
}

func (m *mockBackend) Call(method, path, key string, params stripe.ParamsContainer, v stripe.LastResponseSetter) error {
	data, err := m.handler(method, path, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *mockBackend) CallStreaming(method, path, key string, params stripe.ParamsContainer, v stripe.StreamingLastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallRaw(method, path, key string, body *form.Values, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallMultipart(method, path, key, boundary string, body *bytes.Buffer, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) SetMaxNetworkRetries(maxNetworkRetries int64) {}

const testWebhookSecret = "whsec_test_123456789"

func testConfig() StripeConfig {
	return StripeConfig{SecretKey: "sk_test_123456789", WebhookSecret: testWebhookSecret}
}

func setupMockBackend(t *testing.T, handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)) {
	stripe.SetBackend(stripe.APIBackend, &mockBackend{handler: handler})
	t.Cleanup(func() { stripe.SetBackend(stripe.APIBackend, nil) })
}

func newGateway(t *testing.T) *StripeGateway {
	g, err := NewStripeGateway(testConfig(), zap.NewNop())
	require.NoError(t, err)
	return g
}

func signed(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func TestStripeConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      StripeConfig
		expectedErr string
	}{
		{"missing secret key", StripeConfig{WebhookSecret: "whsec_x"}, "secret key is required"},
		{"malformed secret key", StripeConfig{SecretKey: "pk_test_1", WebhookSecret: "whsec_x"}, "must start with"},
		{"missing webhook secret", StripeConfig{SecretKey: "sk_live_1"}, "webhook secret is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewStripeGateway(tt.config, zap.NewNop())

			require.Error(t, err)
			assert.Nil(t, g)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, testConfig().Validate())
	})
}

func TestStripeGateway_CreatePaymentIntent(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var captured *stripe.PaymentIntentParams
		var calledPath string
		setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
			calledPath = path
			captured = params.(*stripe.PaymentIntentParams)
			return json.Marshal(map[string]any{
				"id":            "pi_123",
				"object":        "payment_intent",
				"amount":        999,
				"currency":      "usd",
				"client_secret": "pi_123_secret_abc",
			})
		})
		g := newGateway(t)

		pi, err := g.CreatePaymentIntent(context.Background(), domain.PaymentIntentInput{
			AmountMinor: 999,
			Currency:    "USD",
			Description: "100 credits",
			Metadata:    map[string]string{"purchase_id": "p-1"},
		})

		require.NoError(t, err)
		assert.Equal(t, "pi_123", pi.ID)
		assert.Equal(t, "pi_123_secret_abc", pi.ClientSecret)
		assert.Equal(t, "/v1/payment_intents", calledPath)
		require.NotNil(t, captured)
		assert.Equal(t, int64(999), *captured.Amount)
		assert.Equal(t, "usd", *captured.Currency)
		assert.Equal(t, "p-1", captured.Metadata["purchase_id"])
		assert.Equal(t, "purchase-p-1", *captured.IdempotencyKey)
	})

	t.Run("stripe error", func(t *testing.T) {
		setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
			return nil, &stripe.Error{Msg: "card declined", HTTPStatusCode: 402}
		})
		g := newGateway(t)

		pi, err := g.CreatePaymentIntent(context.Background(), domain.PaymentIntentInput{AmountMinor: 100, Currency: "usd"})

		assert.Nil(t, pi)
		require.Error(t, err)
		var stripeErr *stripe.Error
		assert.True(t, errors.As(err, &stripeErr))
	})
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	g := newGateway(t)

	t.Run("payment succeeded", func(t *testing.T) {
		body, header := signed(t, `{"id":"evt_1","object":"event","type":"payment_intent.succeeded",
			"data":{"object":{"id":"pi_123","object":"payment_intent"}}}`)

		ev, err := g.ParseWebhook(body, header)

		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, domain.WebhookPaymentSucceeded, ev.Type)
		assert.Equal(t, "pi_123", ev.ProviderRef)
	})

	t.Run("payment failed carries reason", func(t *testing.T) {
		body, header := signed(t, `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed",
			"data":{"object":{"id":"pi_456","object":"payment_intent","last_payment_error":{"message":"Your card was declined."}}}}`)

		ev, err := g.ParseWebhook(body, header)

		require.NoError(t, err)
		assert.Equal(t, domain.WebhookPaymentFailed, ev.Type)
		assert.Equal(t, "pi_456", ev.ProviderRef)
		assert.Equal(t, "Your card was declined.", ev.FailureReason)
	})

	t.Run("other events are ignored", func(t *testing.T) {
		body, header := signed(t, `{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

		ev, err := g.ParseWebhook(body, header)

		require.NoError(t, err)
		assert.Equal(t, domain.WebhookIgnored, ev.Type)
		assert.Empty(t, ev.ProviderRef)
	})

	t.Run("bad signature", func(t *testing.T) {
		body, _ := signed(t, `{"id":"evt_4","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

		ev, err := g.ParseWebhook(body, "t=1,v1=deadbeef")

		assert.Nil(t, ev)
		assert.Error(t, err)
	})
}
