package router

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meterly/backend/internal/app"
	"github.com/meterly/backend/internal/application/identity"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/infrastructure/config"
	"github.com/meterly/backend/internal/interfaces/http/handler"
	"github.com/meterly/backend/internal/interfaces/http/middleware"
	"github.com/meterly/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type apiFixture struct {
	t        *testing.T
	app      *app.Application
	engine   *gin.Engine
	settings *testutil.StaticSettings
	dbErr    error
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	middleware.SetupValidator()

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:                 "api-test-access-secret-0123456789",
			RefreshSecret:          "api-test-refresh-secret-0123456789",
			AccessTokenExpiration:  15 * time.Minute,
			RefreshTokenExpiration: time.Hour,
			Issuer:                 "meterly-test",
		},
		Webhook: config.WebhookConfig{Timeout: time.Second},
		Credits: config.CreditsConfig{SettingsCacheTTL: time.Second},
	}
	log := zaptest.NewLogger(t)
	f := &apiFixture{t: t, settings: testutil.NewStaticSettings()}

	f.app = app.New(app.Deps{
		DB:       testutil.NewSQLiteDB(t),
		Config:   cfg,
		Logger:   log,
		Settings: f.settings,
	})

	f.engine = gin.New()
	h := NewHandlers(f.app, "test", map[string]handler.HealthCheck{
		"database": func(context.Context) error { return f.dbErr },
	})
	r := NewRouter(f.engine)
	RegisterAPI(r, h, Guards{Resolver: f.app.Resolver, Logger: log})
	r.Setup()
	RegisterSystem(f.engine, h)
	return f
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// register creates a user over HTTP and returns its access token and id
func (f *apiFixture) register(username string) (string, uuid.UUID) {
	f.t.Helper()
	w := testutil.PerformRequest(f.t, f.engine, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	}, nil)
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())

	var out handler.AuthResponse
	testutil.DecodeResponse(f.t, w, &out)
	return out.Token.AccessToken, out.User.ID
}

func (f *apiFixture) admin() string {
	f.t.Helper()
	token, id := f.register("root_admin")
	role := principal.RoleAdmin
	_, err := f.app.Users.Update(context.Background(), id, identity.UpdateUserInput{Role: &role})
	require.NoError(f.t, err)
	return token
}

func TestAPI_AnonymousPrincipal(t *testing.T) {
	f := newAPI(t)

	w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/credits/balance", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	anonID := w.Header().Get(middleware.AnonymousIDHeader)
	require.NotEmpty(t, anonID)

	var balance handler.BalanceResponse
	testutil.DecodeResponse(t, w, &balance)
	assert.Equal(t, int64(10), balance.Balance)
	assert.Equal(t, "anonymous:"+anonID, balance.Principal)

	t.Run("the header selects the same session", func(t *testing.T) {
		headers := map[string]string{middleware.AnonymousIDHeader: anonID}
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/actions/summarize", nil, headers)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, anonID, w.Header().Get(middleware.AnonymousIDHeader))

		var action handler.ActionResponse
		testutil.DecodeResponse(t, w, &action)
		assert.Equal(t, int64(1), action.Cost)
		assert.Equal(t, int64(9), action.Balance)
		assert.Nil(t, action.Progress)
	})

	t.Run("me describes the session", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/me", nil,
			map[string]string{middleware.AnonymousIDHeader: anonID})
		require.Equal(t, http.StatusOK, w.Code)

		var me handler.PrincipalResponse
		testutil.DecodeResponse(t, w, &me)
		assert.Equal(t, principal.KindAnonymous, me.Kind)
		assert.Equal(t, principal.RoleGuest, me.Role)
		assert.Empty(t, me.Username)
	})

	t.Run("registered-only routes reject the session", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/payments/purchases", nil,
			map[string]string{middleware.AnonymousIDHeader: anonID})
		testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("public catalog opens no session", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/gamification/event-types", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(middleware.AnonymousIDHeader))
	})
}

func TestAPI_InsufficientCredits(t *testing.T) {
	f := newAPI(t)
	f.settings.Update(func(s *settings.Settings) { s.ActionCost = 11 })

	w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/actions/summarize", nil, nil)
	testutil.AssertErrorResponse(t, w, http.StatusUnprocessableEntity, "INSUFFICIENT_CREDITS")

	anonID := w.Header().Get(middleware.AnonymousIDHeader)
	require.NotEmpty(t, anonID)
	w = testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/credits/transactions", nil,
		map[string]string{middleware.AnonymousIDHeader: anonID})
	resp := testutil.DecodeResponse(t, w, nil)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total, "only the opening grant is recorded")
}

func TestAPI_AuthFlow(t *testing.T) {
	f := newAPI(t)

	t.Run("register merges the anonymous balance", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/credits/balance", nil, nil)
		anonID := w.Header().Get(middleware.AnonymousIDHeader)

		w = testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/auth/register", map[string]string{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "password123",
		}, map[string]string{middleware.AnonymousIDHeader: anonID})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var out handler.AuthResponse
		testutil.DecodeResponse(t, w, &out)
		assert.Equal(t, int64(10), out.MergedCredits)
		assert.Equal(t, int64(110), out.User.Balance)
		assert.Equal(t, principal.TierFreemium, out.User.Tier)
		assert.NotEmpty(t, out.Token.AccessToken)
	})

	t.Run("duplicate username", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/auth/register", map[string]string{
			"username": "alice",
			"email":    "other@example.com",
			"password": "password123",
		}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusConflict, "ALREADY_EXISTS")
	})

	t.Run("invalid body", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/auth/register",
			map[string]string{"username": "al"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	var tokens handler.AuthResponse
	t.Run("login", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"username": "alice",
			"password": "password123",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		testutil.DecodeResponse(t, w, &tokens)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"username": "alice",
			"password": "wrong-password",
		}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("bearer requests charge the account", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/actions/summarize", nil,
			bearer(tokens.Token.AccessToken))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Empty(t, w.Header().Get(middleware.AnonymousIDHeader))

		var action handler.ActionResponse
		testutil.DecodeResponse(t, w, &action)
		assert.Equal(t, int64(109), action.Balance)
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/me", nil,
			map[string]string{"Authorization": "Basic abc"})
		testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("logout revokes the access token", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/auth/logout",
			map[string]string{"refresh_token": tokens.Token.RefreshToken}, bearer(tokens.Token.AccessToken))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/me", nil, bearer(tokens.Token.AccessToken))
		testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})
}

func TestAPI_AdminGuard(t *testing.T) {
	f := newAPI(t)
	userToken, _ := f.register("bob")
	adminToken := f.admin()

	t.Run("anonymous gets 401", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/admin/settings", nil, nil)
		testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("user gets 403", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/admin/settings", nil, bearer(userToken))
		testutil.AssertErrorResponse(t, w, http.StatusForbidden, "FORBIDDEN")
	})

	t.Run("admin reads and patches settings", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPut, "/api/v1/admin/settings",
			map[string]any{"enable_coupons": false, "action_cost": 2}, bearer(adminToken))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var got settings.Settings
		testutil.DecodeResponse(t, testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/admin/settings", nil, bearer(adminToken)), &got)
		assert.False(t, got.EnableCoupons)
		assert.Equal(t, int64(2), got.ActionCost)
		assert.Equal(t, int64(10), got.AnonymousDefaultCredits)
	})

	t.Run("admin grants credits", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/credits/balance", nil, nil)
		anonID := w.Header().Get(middleware.AnonymousIDHeader)

		w = testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/admin/credits/grant", map[string]any{
			"principal_kind": "anonymous",
			"principal_id":   anonID,
			"amount":         5,
		}, bearer(adminToken))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var balance handler.BalanceResponse
		testutil.DecodeResponse(t, w, &balance)
		assert.Equal(t, int64(15), balance.Balance)

		w = testutil.PerformRequest(t, f.engine, http.MethodGet,
			"/api/v1/admin/principals/anonymous/"+anonID+"/transactions", nil, bearer(adminToken))
		resp := testutil.DecodeResponse(t, w, nil)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(2), resp.Meta.Total)
	})

	t.Run("unknown principal kind", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet,
			"/api/v1/admin/principals/robot/"+uuid.NewString()+"/transactions", nil, bearer(adminToken))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAPI_Gamification(t *testing.T) {
	f := newAPI(t)
	adminToken := f.admin()

	w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/admin/event-types", map[string]any{
		"name":             "summarize",
		"points_per_event": 10,
	}, bearer(adminToken))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var et handler.EventTypeResponse
	testutil.DecodeResponse(t, w, &et)

	w = testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/admin/badges", map[string]any{
		"name":            "Starter",
		"event_type_id":   et.ID,
		"required_points": 10,
		"eligibility":     "both",
	}, bearer(adminToken))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("duplicate event type", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/admin/event-types",
			map[string]any{"name": "summarize", "points_per_event": 1}, bearer(adminToken))
		testutil.AssertErrorResponse(t, w, http.StatusConflict, "ALREADY_EXISTS")
	})

	t.Run("action records progress and earns the badge", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/actions/summarize", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var action handler.ActionResponse
		testutil.DecodeResponse(t, w, &action)
		require.NotNil(t, action.Progress)
		assert.Equal(t, int64(10), action.Progress.Progress.Points)
		assert.True(t, action.Progress.BadgeChanged)
		require.NotNil(t, action.Progress.Badge)
		assert.Equal(t, "Starter", action.Progress.Badge.Name)

		anonID := w.Header().Get(middleware.AnonymousIDHeader)
		w = testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/gamification/progress/summarize", nil,
			map[string]string{middleware.AnonymousIDHeader: anonID})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var progress handler.ProgressResponse
		testutil.DecodeResponse(t, w, &progress)
		assert.Equal(t, int64(10), progress.Points)
	})

	t.Run("record event for unknown type", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/gamification/events",
			map[string]string{"event_type": "unknown_type"}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("rankings are public", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/gamification/rankings?limit=5", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var rankings []handler.RankingResponse
		testutil.DecodeResponse(t, w, &rankings)
		require.Len(t, rankings, 1)
		assert.Equal(t, 1, rankings[0].Rank)
		assert.Equal(t, int64(10), rankings[0].TotalPoints)
	})

	t.Run("event type with progress cannot be deleted", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodDelete, "/api/v1/admin/event-types/"+et.ID.String(), nil, bearer(adminToken))
		testutil.AssertErrorResponse(t, w, http.StatusConflict, "CONFLICT")
	})
}

func TestAPI_Coupons(t *testing.T) {
	f := newAPI(t)
	adminToken := f.admin()

	w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/admin/coupon-types",
		map[string]any{"name": "Welcome", "credit_value": 25}, bearer(adminToken))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ct handler.CouponTypeResponse
	testutil.DecodeResponse(t, w, &ct)

	w = testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/admin/coupons",
		map[string]any{"coupon_type_id": ct.ID}, bearer(adminToken))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued handler.CouponResponse
	testutil.DecodeResponse(t, w, &issued)
	require.NotEmpty(t, issued.Code)

	t.Run("redeem credits the caller once", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/coupons/redeem",
			map[string]string{"code": issued.Code}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var redeemed handler.RedeemResponse
		testutil.DecodeResponse(t, w, &redeemed)
		assert.Equal(t, int64(25), redeemed.CreditValue)
		assert.Equal(t, int64(35), redeemed.Balance)

		w = testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/coupons/redeem",
			map[string]string{"code": issued.Code}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusUnprocessableEntity, "INVALID_STATE")
	})

	t.Run("malformed code", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/coupons/redeem",
			map[string]string{"code": "!!"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("demo coupon needs a configured type", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/coupons/demo", nil, nil)
		testutil.AssertErrorResponse(t, w, http.StatusNotFound, "NOT_FOUND")

		f.settings.Update(func(s *settings.Settings) { s.DemoCouponTypeID = &ct.ID })
		w = testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/coupons/demo", nil, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		anonID := w.Header().Get(middleware.AnonymousIDHeader)

		var demo handler.CouponResponse
		testutil.DecodeResponse(t, w, &demo)
		assert.Equal(t, "anonymous:"+anonID, demo.BoundTo)
		require.NotNil(t, demo.ExpiresAt)

		w = testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/coupons/redeem",
			map[string]string{"code": demo.Code}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusForbidden, "COUPON_NOT_OWNED")
	})

	t.Run("disabled coupons", func(t *testing.T) {
		f.settings.Update(func(s *settings.Settings) { s.EnableCoupons = false })
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/admin/coupons",
			map[string]any{"coupon_type_id": ct.ID}, bearer(adminToken))
		testutil.AssertErrorResponse(t, w, http.StatusUnprocessableEntity, "INVALID_STATE")
	})
}

func TestAPI_Payments(t *testing.T) {
	f := newAPI(t)

	t.Run("webhook without signature", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodPost, "/api/v1/payments/stripe/webhook", `{"id":"evt_1"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("packages are public", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/payments/packages", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Empty(t, w.Header().Get(middleware.AnonymousIDHeader))
	})
}

func TestAPI_System(t *testing.T) {
	f := newAPI(t)

	t.Run("healthy", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"healthy"`)
	})

	t.Run("failing check", func(t *testing.T) {
		f.dbErr = errors.New("connection refused")
		defer func() { f.dbErr = nil }()

		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "unhealthy")
	})

	t.Run("unknown route", func(t *testing.T) {
		w := testutil.PerformRequest(t, f.engine, http.MethodGet, "/api/v1/nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
