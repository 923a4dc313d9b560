package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	creditapp "github.com/meterly/backend/internal/application/credit"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/payment"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/cache"
	"github.com/meterly/backend/internal/infrastructure/persistence"
	"github.com/meterly/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, input payment.PaymentIntentInput) (*payment.PaymentIntent, error) {
	args := m.Called(ctx, input)
	if pi := args.Get(0); pi != nil {
		return pi.(*payment.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if ev := args.Get(0); ev != nil {
		return ev.(*payment.WebhookEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

type fixture struct {
	service  *Service
	gateway  *mockGateway
	credits  *creditapp.Engine
	settings *testutil.StaticSettings
	users    *persistence.GormUserRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	logger := zaptest.NewLogger(t)
	tm := persistence.NewGormTransactionManager(db)
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		gateway:  new(mockGateway),
		settings: testutil.NewStaticSettings(),
		users:    persistence.NewGormUserRepository(db),
	}
	f.credits = creditapp.NewEngine(
		persistence.NewGormBalanceRepository(db),
		persistence.NewGormCreditTransactionRepository(db),
		f.users, tm, f.settings, nil, nil, logger,
	)
	f.service = NewService(
		persistence.NewGormCreditPackageRepository(db),
		persistence.NewGormPurchaseRepository(db),
		f.credits, f.gateway, store, tm, logger,
	)
	return f
}

func (f *fixture) newUser(t *testing.T) principal.Ref {
	t.Helper()
	base := shared.NewBaseEntity()
	user := &principal.User{
		BaseEntity:     base,
		Username:       "buyer-" + base.ID.String()[:8],
		Email:          base.ID.String()[:8] + "@example.com",
		PasswordHash:   "unused",
		Role:           principal.RoleUser,
		Tier:           principal.TierFreemium,
		Status:         principal.UserStatusActive,
		LastActivityAt: base.CreatedAt,
	}
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, user))
	ref := principal.RegisteredRef(user.ID)
	_, err := f.credits.Open(ctx, ref, 100, "Account opened")
	require.NoError(t, err)
	return ref
}

func (f *fixture) newPackage(t *testing.T) *payment.CreditPackage {
	t.Helper()
	pkg, err := f.service.CreatePackage(context.Background(), PackageInput{
		Name:     "Starter",
		Credits:  500,
		Price:    decimal.RequireFromString("9.99"),
		Currency: "USD",
	})
	require.NoError(t, err)
	return pkg
}

// purchase opens a purchase whose payment intent id is intentID
func (f *fixture) purchase(t *testing.T, user principal.Ref, pkg *payment.CreditPackage, intentID string) *payment.Purchase {
	t.Helper()
	f.gateway.On("CreatePaymentIntent", mock.Anything, mock.MatchedBy(func(in payment.PaymentIntentInput) bool {
		return in.AmountMinor == 999 && in.Currency == "usd"
	})).Return(&payment.PaymentIntent{ID: intentID, ClientSecret: intentID + "_secret"}, nil).Once()

	result, err := f.service.CreatePurchase(context.Background(), user.ID, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, intentID+"_secret", result.ClientSecret)
	assert.Equal(t, intentID, result.Purchase.ProviderRef)
	return result.Purchase
}

func (f *fixture) webhook(event *payment.WebhookEvent) {
	f.gateway.On("ParseWebhook", []byte(event.ID), "sig").Return(event, nil)
}

func (f *fixture) balance(t *testing.T, ref principal.Ref) int64 {
	t.Helper()
	b, err := f.credits.GetBalance(context.Background(), ref)
	require.NoError(t, err)
	return b
}

func TestService_CreatePurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a pending purchase with a payment intent", func(t *testing.T) {
		f := newFixture(t)
		user := f.newUser(t)
		p := f.purchase(t, user, f.newPackage(t), "pi_1")

		assert.Equal(t, payment.PurchaseStatusPending, p.Status)
		assert.Equal(t, int64(500), p.Credits)
		f.gateway.AssertExpectations(t)
		purchases, err := f.service.ListPurchases(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, purchases, 1)
		assert.Equal(t, "pi_1", purchases[0].ProviderRef)
	})

	t.Run("inactive package", func(t *testing.T) {
		f := newFixture(t)
		pkg := f.newPackage(t)
		off := false
		_, err := f.service.UpdatePackage(ctx, pkg.ID, PackageInput{
			Name: pkg.Name, Credits: pkg.Credits, Price: pkg.Price, Currency: pkg.Currency, Active: &off,
		})
		require.NoError(t, err)

		_, err = f.service.CreatePurchase(ctx, f.newUser(t).ID, pkg.ID)

		assert.ErrorIs(t, err, shared.ErrInvalidState)
		active, err := f.service.ListPackages(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("gateway failure marks the purchase failed", func(t *testing.T) {
		f := newFixture(t)
		user := f.newUser(t)
		f.gateway.On("CreatePaymentIntent", mock.Anything, mock.Anything).Return(nil, errors.New("stripe down"))

		_, err := f.service.CreatePurchase(ctx, user.ID, f.newPackage(t).ID)

		assert.ErrorIs(t, err, shared.ErrInternal)
		purchases, err := f.service.ListPurchases(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, purchases, 1)
		assert.Equal(t, payment.PurchaseStatusFailed, purchases[0].Status)
	})

	t.Run("without gateway", func(t *testing.T) {
		f := newFixture(t)
		f.service.gateway = nil

		_, err := f.service.CreatePurchase(ctx, uuid.New(), uuid.New())

		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("unknown package", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.CreatePurchase(ctx, f.newUser(t).ID, uuid.New())

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestService_HandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("success grants credits exactly once", func(t *testing.T) {
		f := newFixture(t)
		user := f.newUser(t)
		f.purchase(t, user, f.newPackage(t), "pi_ok")
		f.webhook(&payment.WebhookEvent{ID: "evt_1", Type: payment.WebhookPaymentSucceeded, ProviderRef: "pi_ok"})
		f.webhook(&payment.WebhookEvent{ID: "evt_2", Type: payment.WebhookPaymentSucceeded, ProviderRef: "pi_ok"})

		require.NoError(t, f.service.HandleWebhook(ctx, []byte("evt_1"), "sig"))
		require.NoError(t, f.service.HandleWebhook(ctx, []byte("evt_1"), "sig"), "redelivery")
		require.NoError(t, f.service.HandleWebhook(ctx, []byte("evt_2"), "sig"), "second event for a paid purchase")

		assert.Equal(t, int64(600), f.balance(t, user))
		page, err := f.credits.ListTransactions(ctx, user, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, credit.KindPurchase, page.Items[0].Kind)
		purchases, err := f.service.ListPurchases(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.PurchaseStatusPaid, purchases[0].Status)
		assert.NotNil(t, purchases[0].PaidAt)
	})

	t.Run("purchase credits ignore disable_credits", func(t *testing.T) {
		f := newFixture(t)
		user := f.newUser(t)
		f.purchase(t, user, f.newPackage(t), "pi_dis")
		f.settings.Update(func(s *settings.Settings) { s.DisableCredits = true })
		f.webhook(&payment.WebhookEvent{ID: "evt_dis", Type: payment.WebhookPaymentSucceeded, ProviderRef: "pi_dis"})

		require.NoError(t, f.service.HandleWebhook(ctx, []byte("evt_dis"), "sig"))

		assert.Equal(t, int64(600), f.balance(t, user))
	})

	t.Run("failure then retry success", func(t *testing.T) {
		f := newFixture(t)
		user := f.newUser(t)
		f.purchase(t, user, f.newPackage(t), "pi_retry")
		f.webhook(&payment.WebhookEvent{ID: "evt_f", Type: payment.WebhookPaymentFailed, ProviderRef: "pi_retry", FailureReason: "card declined"})
		f.webhook(&payment.WebhookEvent{ID: "evt_s", Type: payment.WebhookPaymentSucceeded, ProviderRef: "pi_retry"})

		require.NoError(t, f.service.HandleWebhook(ctx, []byte("evt_f"), "sig"))
		purchases, err := f.service.ListPurchases(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.PurchaseStatusFailed, purchases[0].Status)
		assert.Equal(t, "card declined", purchases[0].FailureMsg)
		assert.Equal(t, int64(100), f.balance(t, user))

		require.NoError(t, f.service.HandleWebhook(ctx, []byte("evt_s"), "sig"))
		assert.Equal(t, int64(600), f.balance(t, user))
	})

	t.Run("invalid signature", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("ParseWebhook", mock.Anything, "bad").Return(nil, errors.New("signature mismatch"))

		err := f.service.HandleWebhook(ctx, []byte("{}"), "bad")

		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("ignored and unknown events succeed", func(t *testing.T) {
		f := newFixture(t)
		f.webhook(&payment.WebhookEvent{ID: "evt_x", Type: payment.WebhookIgnored})
		f.webhook(&payment.WebhookEvent{ID: "evt_y", Type: payment.WebhookPaymentSucceeded, ProviderRef: "pi_missing"})

		assert.NoError(t, f.service.HandleWebhook(ctx, []byte("evt_x"), "sig"))
		assert.NoError(t, f.service.HandleWebhook(ctx, []byte("evt_y"), "sig"))
	})
}

func TestService_Packages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreatePackage(ctx, PackageInput{Name: "Bad", Credits: 10, Price: decimal.RequireFromString("1.999"), Currency: "usd"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	pkg := f.newPackage(t)
	assert.Equal(t, "usd", pkg.Currency)
	assert.Equal(t, int64(999), pkg.MinorUnits())

	_, err = f.service.UpdatePackage(ctx, uuid.New(), PackageInput{Name: "X", Credits: 1, Price: decimal.NewFromInt(1), Currency: "usd"})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	all, err := f.service.ListPackages(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
