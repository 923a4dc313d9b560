// Package app wires repositories, engines and services into one Application.
// cmd/server and the HTTP tests build the same graph through New.
package app

import (
	"context"

	couponapp "github.com/meterly/backend/internal/application/coupon"
	creditapp "github.com/meterly/backend/internal/application/credit"
	gamapp "github.com/meterly/backend/internal/application/gamification"
	"github.com/meterly/backend/internal/application/identity"
	integrationapp "github.com/meterly/backend/internal/application/integration"
	"github.com/meterly/backend/internal/application/metering"
	paymentapp "github.com/meterly/backend/internal/application/payment"
	settingsapp "github.com/meterly/backend/internal/application/settings"
	"github.com/meterly/backend/internal/domain/integration"
	"github.com/meterly/backend/internal/domain/payment"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/auth"
	"github.com/meterly/backend/internal/infrastructure/config"
	"github.com/meterly/backend/internal/infrastructure/persistence"
	"github.com/meterly/backend/internal/infrastructure/scheduler"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"github.com/meterly/backend/internal/infrastructure/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Job names registered with the scheduler
const (
	JobCreditReset  = "credit_reset"
	JobSessionSweep = "session_sweep"
)

// Deps are the infrastructure dependencies of an Application. DB, Config and
// Logger are required; the rest default as documented per field.
type Deps struct {
	DB     *gorm.DB
	Config *config.Config
	Logger *zap.Logger

	// Metrics may be nil
	Metrics     *telemetry.Metrics
	// Publisher defaults to shared.NopEventPublisher
	Publisher   shared.EventPublisher
	// Blacklist defaults to an in-memory blacklist
	Blacklist   auth.TokenBlacklist
	// Gateway nil disables purchases
	Gateway     payment.Gateway
	// Idempotency nil leaves webhook dedup to the purchase status
	Idempotency shared.IdempotencyStore
	// Notifier nil keeps settings invalidation local to this instance
	Notifier    settings.ChangeNotifier
	// Sender defaults to an HTTP sender with Config.Webhook.Timeout
	Sender      integration.Sender
	// Settings overrides the provider read by the engines. Defaults to the
	// TTL cache in front of the settings table.
	Settings    settings.Provider
}

// Application ties domain services together
type Application struct {
	TxManager     shared.TransactionManager
	Tokens        *auth.JWTService
	SettingsCache *settingsapp.CachedProvider
	Settings      *settingsapp.Service
	Credits       *creditapp.Engine
	Gamification  *gamapp.Engine
	Catalog       *gamapp.CatalogService
	Coupons       *couponapp.Engine
	CouponTypes   *couponapp.TypeService
	Resolver      *identity.Resolver
	Auth          *identity.AuthService
	Users         *identity.UserService
	Sweeper       *identity.SessionSweeper
	Actions       *metering.ActionService
	Dispatcher    *integrationapp.WebhookDispatcher
	Integrations  *integrationapp.Service
	Payments      *paymentapp.Service

	// SettingsProvider is what the engines read: Deps.Settings or SettingsCache
	SettingsProvider settings.Provider

	logger *zap.Logger
}

// New builds the service graph
func New(deps Deps) *Application {
	db, cfg, log := deps.DB, deps.Config, deps.Logger
	if deps.Publisher == nil {
		deps.Publisher = shared.NopEventPublisher{}
	}
	if deps.Blacklist == nil {
		deps.Blacklist = auth.NewInMemoryTokenBlacklist()
	}
	if deps.Sender == nil {
		deps.Sender = webhook.NewHTTPSender(cfg.Webhook.Timeout, log)
	}

	tm := persistence.NewGormTransactionManager(db)

	// Repositories
	users := persistence.NewGormUserRepository(db)
	sessions := persistence.NewGormSessionRepository(db)
	balances := persistence.NewGormBalanceRepository(db)
	ledger := persistence.NewGormCreditTransactionRepository(db)
	eventTypes := persistence.NewGormEventTypeRepository(db)
	events := persistence.NewGormGamificationEventRepository(db)
	badges := persistence.NewGormBadgeRepository(db)
	progress := persistence.NewGormProgressRepository(db)
	couponTypes := persistence.NewGormCouponTypeRepository(db)
	coupons := persistence.NewGormCouponRepository(db)
	integrations := persistence.NewGormIntegrationRepository(db)
	packages := persistence.NewGormCreditPackageRepository(db)
	purchases := persistence.NewGormPurchaseRepository(db)
	settingsRepo := persistence.NewGormSettingsRepository(db)

	a := &Application{TxManager: tm, logger: log.Named("app")}

	a.SettingsCache = settingsapp.NewCachedProvider(settingsRepo, cfg.Credits.SettingsCacheTTL, log)
	a.Settings = settingsapp.NewService(settingsRepo, settingsRepo, a.SettingsCache, deps.Notifier, log)
	a.SettingsProvider = deps.Settings
	if a.SettingsProvider == nil {
		a.SettingsProvider = a.SettingsCache
	}

	a.Tokens = auth.NewJWTService(cfg.JWT)

	a.Credits = creditapp.NewEngine(balances, ledger, users, tm, a.SettingsProvider, deps.Publisher, deps.Metrics, log)
	if cfg.Scheduler.ResetBatchSize > 0 {
		a.Credits.SetResetBatchSize(cfg.Scheduler.ResetBatchSize)
	}

	a.Gamification = gamapp.NewEngine(eventTypes, events, badges, progress, tm, deps.Publisher, deps.Metrics, log)
	a.Catalog = gamapp.NewCatalogService(eventTypes, events, badges, progress, tm, a.Gamification, log)

	a.Coupons = couponapp.NewEngine(couponTypes, coupons, a.Credits, tm, a.SettingsProvider, deps.Publisher, deps.Metrics, log)
	a.CouponTypes = couponapp.NewTypeService(couponTypes, log)

	a.Resolver = identity.NewResolver(users, sessions, a.Tokens, deps.Blacklist, tm, a.Credits, a.SettingsProvider, log)
	a.Auth = identity.NewAuthService(users, sessions, a.Tokens, deps.Blacklist, tm, a.Credits, a.SettingsProvider, log)
	a.Users = identity.NewUserService(users, log)
	a.Sweeper = identity.NewSessionSweeper(sessions, a.SettingsProvider, log)

	a.Actions = metering.NewActionService(a.Credits, a.Gamification, tm, a.SettingsProvider, log)

	a.Dispatcher = integrationapp.NewWebhookDispatcher(integrations, deps.Sender, deps.Metrics, log)
	a.Integrations = integrationapp.NewService(integrations, a.Dispatcher, log)

	a.Payments = paymentapp.NewService(packages, purchases, a.Credits, deps.Gateway, deps.Idempotency, tm, log)

	return a
}

// Jobs returns the periodic jobs of the application
func (a *Application) Jobs(cfg config.SchedulerConfig) []scheduler.Job {
	return []scheduler.Job{
		{Name: JobCreditReset, Spec: cfg.CreditResetSpec, Run: a.runCreditReset},
		{Name: JobSessionSweep, Spec: cfg.SessionSweepSpec, Run: a.runSessionSweep},
	}
}

func (a *Application) runCreditReset(ctx context.Context) error {
	s, err := a.SettingsProvider.Current(ctx)
	if err != nil {
		return err
	}
	n, err := a.Credits.ResetAll(ctx, s.FreemiumDefaultCredits, s.PremiumDefaultCredits, s.ResetIntervalDays)
	if err != nil {
		return err
	}
	a.logger.Info("Credit reset finished", zap.Int("users", n))
	return nil
}

func (a *Application) runSessionSweep(ctx context.Context) error {
	n, err := a.Sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("Session sweep finished", zap.Int64("sessions", n))
	return nil
}
