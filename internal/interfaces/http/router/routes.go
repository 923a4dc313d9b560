package router

import (
	"github.com/gin-gonic/gin"
	"github.com/meterly/backend/internal/app"
	"github.com/meterly/backend/internal/interfaces/http/handler"
	"github.com/meterly/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// Handlers groups every HTTP handler of the API
type Handlers struct {
	Auth          *handler.AuthHandler
	Account       *handler.AccountHandler
	Credit        *handler.CreditHandler
	Gamification  *handler.GamificationHandler
	Coupon        *handler.CouponHandler
	Payment       *handler.PaymentHandler
	StripeWebhook *handler.StripeWebhookHandler
	Integration   *handler.IntegrationHandler
	Settings      *handler.SettingsHandler
	System        *handler.SystemHandler
}

// NewHandlers builds the handlers over an Application
func NewHandlers(a *app.Application, version string, checks map[string]handler.HealthCheck) Handlers {
	return Handlers{
		Auth:          handler.NewAuthHandler(a.Auth),
		Account:       handler.NewAccountHandler(a.Users),
		Credit:        handler.NewCreditHandler(a.Credits, a.Actions, a.SettingsProvider),
		Gamification:  handler.NewGamificationHandler(a.Gamification, a.Catalog),
		Coupon:        handler.NewCouponHandler(a.Coupons, a.CouponTypes),
		Payment:       handler.NewPaymentHandler(a.Payments),
		StripeWebhook: handler.NewStripeWebhookHandler(a.Payments),
		Integration:   handler.NewIntegrationHandler(a.Integrations),
		Settings:      handler.NewSettingsHandler(a.Settings),
		System:        handler.NewSystemHandler(version, checks),
	}
}

// Guards are the per-route middleware of the API. Limiters may be nil to
// disable rate limiting.
type Guards struct {
	Resolver  middleware.PrincipalResolver
	Logger    *zap.Logger
	// Limiter throttles each principal
	Limiter   *middleware.RateLimiter
	// IPLimiter throttles clients before a principal exists: the auth
	// endpoints and anonymous session creation
	IPLimiter *middleware.RateLimiter
}

func (g Guards) principal() []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, 3)
	if g.IPLimiter != nil {
		chain = append(chain, middleware.RateLimitByIP(g.IPLimiter))
	}
	chain = append(chain, middleware.ResolvePrincipal(g.Resolver, g.Logger))
	if g.Limiter != nil {
		chain = append(chain, middleware.RateLimit(g.Limiter))
	}
	return chain
}

func (g Guards) public() []gin.HandlerFunc {
	if g.IPLimiter == nil {
		return nil
	}
	return []gin.HandlerFunc{middleware.RateLimitByIP(g.IPLimiter)}
}

// RegisterAPI registers every /api/v1 route on r. Public routes skip
// principal resolution so browsing them never opens an anonymous session.
func RegisterAPI(r *Router, h Handlers, g Guards) {
	// Public
	authPublic := NewDomainGroup("auth", "/auth").Use(g.public()...)
	authPublic.POST("/register", h.Auth.Register)
	authPublic.POST("/login", h.Auth.Login)
	authPublic.POST("/refresh", h.Auth.RefreshToken)

	catalog := NewDomainGroup("catalog", "")
	catalog.GET("/gamification/rankings", h.Gamification.GetRankings)
	catalog.GET("/gamification/event-types", h.Gamification.ListEventTypes)
	catalog.GET("/gamification/badges", h.Gamification.ListBadges)
	catalog.GET("/payments/packages", h.Payment.ListPackages)

	// Authenticated by the Stripe-Signature header
	webhooks := NewDomainGroup("webhooks", "/payments/stripe")
	webhooks.POST("/webhook", h.StripeWebhook.HandleStripeWebhook)

	// Any principal, registered or anonymous
	principal := NewDomainGroup("principal", "").Use(g.principal()...)
	principal.POST("/auth/logout", middleware.RequireRegistered(), h.Auth.Logout)
	principal.GET("/me", h.Account.Me)
	principal.PUT("/me/password", middleware.RequireRegistered(), h.Account.ChangePassword)
	principal.GET("/credits/balance", h.Credit.GetBalance)
	principal.GET("/credits/transactions", h.Credit.ListTransactions)
	principal.POST("/actions/:name", h.Credit.PerformAction)
	principal.POST("/gamification/events", h.Gamification.RecordEvent)
	principal.GET("/gamification/progress", h.Gamification.ListProgress)
	principal.GET("/gamification/progress/:event_type", h.Gamification.GetProgress)
	principal.POST("/coupons/redeem", h.Coupon.Redeem)
	principal.POST("/coupons/demo", h.Coupon.IssueDemo)
	principal.GET("/coupons/mine", h.Coupon.ListMine)
	principal.POST("/payments/purchases", middleware.RequireRegistered(), h.Payment.CreatePurchase)
	principal.GET("/payments/purchases", middleware.RequireRegistered(), h.Payment.ListPurchases)

	// Admin
	admin := NewDomainGroup("admin", "/admin").Use(g.principal()...).Use(middleware.RequireAdmin())

	admin.GET("/users", h.Account.ListUsers)
	admin.GET("/users/:id", h.Account.GetUser)
	admin.PATCH("/users/:id", h.Account.UpdateUser)

	admin.POST("/credits/grant", h.Credit.Grant)
	admin.POST("/credits/reset", h.Credit.Reset)
	admin.GET("/principals/:kind/:id/transactions", h.Credit.ListPrincipalTransactions)

	admin.GET("/event-types/:id", h.Gamification.GetEventType)
	admin.POST("/event-types", h.Gamification.CreateEventType)
	admin.PUT("/event-types/:id", h.Gamification.UpdateEventType)
	admin.DELETE("/event-types/:id", h.Gamification.DeleteEventType)
	admin.POST("/event-types/:id/recompute", h.Gamification.RecomputeEventType)
	admin.POST("/badges", h.Gamification.CreateBadge)
	admin.PUT("/badges/:id", h.Gamification.UpdateBadge)
	admin.DELETE("/badges/:id", h.Gamification.DeleteBadge)

	admin.GET("/coupon-types", h.Coupon.ListTypes)
	admin.GET("/coupon-types/:id", h.Coupon.GetType)
	admin.POST("/coupon-types", h.Coupon.CreateType)
	admin.PUT("/coupon-types/:id", h.Coupon.UpdateType)
	admin.DELETE("/coupon-types/:id", h.Coupon.DeleteType)
	admin.GET("/coupons", h.Coupon.List)
	admin.POST("/coupons", h.Coupon.Issue)

	admin.GET("/packages", h.Payment.ListAllPackages)
	admin.POST("/packages", h.Payment.CreatePackage)
	admin.PUT("/packages/:id", h.Payment.UpdatePackage)

	admin.GET("/integrations", h.Integration.List)
	admin.GET("/integrations/:id", h.Integration.Get)
	admin.POST("/integrations", h.Integration.Create)
	admin.PUT("/integrations/:id", h.Integration.Update)
	admin.DELETE("/integrations/:id", h.Integration.Delete)
	admin.POST("/integrations/:id/test", h.Integration.Test)

	admin.GET("/settings", h.Settings.Get)
	admin.PUT("/settings", h.Settings.Update)

	r.Register(authPublic).
		Register(catalog).
		Register(webhooks).
		Register(principal).
		Register(admin)
}

// RegisterSystem registers the unversioned system routes on engine
func RegisterSystem(engine *gin.Engine, h Handlers) {
	engine.GET("/health", h.System.Health)
	engine.GET("/api/v1/system/info", h.System.GetSystemInfo)
}
