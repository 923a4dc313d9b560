package settings

import (
	"context"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Seeder stores values for keys that have none yet
type Seeder interface {
	SeedMissing(ctx context.Context, values map[string]string) error
}

// Patch changes a subset of settings. Nil fields keep their value.
type Patch struct {
	DisableCredits          *bool
	EnableCoupons           *bool
	AnonymousDefaultCredits *int64
	FreemiumDefaultCredits  *int64
	PremiumDefaultCredits   *int64
	ResetIntervalDays       *int
	ActionCost              *int64
	AnonymousSessionTTLDays *int
	// DemoCouponTypeID set to uuid.Nil clears the demo coupon type.
	DemoCouponTypeID *uuid.UUID
}

func (p Patch) apply(s settings.Settings) settings.Settings {
	if p.DisableCredits != nil {
		s.DisableCredits = *p.DisableCredits
	}
	if p.EnableCoupons != nil {
		s.EnableCoupons = *p.EnableCoupons
	}
	if p.AnonymousDefaultCredits != nil {
		s.AnonymousDefaultCredits = *p.AnonymousDefaultCredits
	}
	if p.FreemiumDefaultCredits != nil {
		s.FreemiumDefaultCredits = *p.FreemiumDefaultCredits
	}
	if p.PremiumDefaultCredits != nil {
		s.PremiumDefaultCredits = *p.PremiumDefaultCredits
	}
	if p.ResetIntervalDays != nil {
		s.ResetIntervalDays = *p.ResetIntervalDays
	}
	if p.ActionCost != nil {
		s.ActionCost = *p.ActionCost
	}
	if p.AnonymousSessionTTLDays != nil {
		s.AnonymousSessionTTLDays = *p.AnonymousSessionTTLDays
	}
	if p.DemoCouponTypeID != nil {
		if *p.DemoCouponTypeID == uuid.Nil {
			s.DemoCouponTypeID = nil
		} else {
			id := *p.DemoCouponTypeID
			s.DemoCouponTypeID = &id
		}
	}
	return s
}

// Service reads and updates settings
type Service struct {
	repo     settings.Repository
	seeder   Seeder
	provider *CachedProvider
	notifier settings.ChangeNotifier
	logger   *zap.Logger
}

// NewService creates a new Service. notifier may be nil on single-instance
// deployments.
func NewService(repo settings.Repository, seeder Seeder, provider *CachedProvider, notifier settings.ChangeNotifier, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		seeder:   seeder,
		provider: provider,
		notifier: notifier,
		logger:   logger.Named("settings"),
	}
}

// Get returns the stored settings, bypassing the cache
func (s *Service) Get(ctx context.Context) (settings.Settings, error) {
	values, err := s.repo.All(ctx)
	if err != nil {
		return settings.Settings{}, s.internal("get", err)
	}
	current, err := settings.FromMap(settings.Defaults(), values)
	if err != nil {
		return settings.Settings{}, s.internal("get", err)
	}
	return current, nil
}

// Update applies patch, stores the result and tells every instance to reload
func (s *Service) Update(ctx context.Context, patch Patch) (settings.Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return settings.Settings{}, err
	}
	next := patch.apply(current)
	if err := next.Validate(); err != nil {
		return settings.Settings{}, err
	}
	if err := s.repo.Upsert(ctx, next.ToMap()); err != nil {
		return settings.Settings{}, s.internal("update", err)
	}

	s.provider.Invalidate()
	if s.notifier != nil {
		if err := s.notifier.NotifyChanged(ctx); err != nil {
			s.logger.Warn("Failed to broadcast settings change", zap.Error(err))
		}
	}
	s.logger.Info("Settings updated",
		zap.Bool("disable_credits", next.DisableCredits),
		zap.Bool("enable_coupons", next.EnableCoupons))
	return next, nil
}

// Bootstrap seeds keys that were never stored from the configured defaults.
// Existing values are left untouched.
func (s *Service) Bootstrap(ctx context.Context, cfg config.CreditsConfig) error {
	seed := settings.Defaults()
	if cfg.AnonymousDefault > 0 {
		seed.AnonymousDefaultCredits = cfg.AnonymousDefault
	}
	if cfg.FreemiumDefault > 0 {
		seed.FreemiumDefaultCredits = cfg.FreemiumDefault
	}
	if cfg.PremiumDefault > 0 {
		seed.PremiumDefaultCredits = cfg.PremiumDefault
	}
	if cfg.ResetInterval > 0 {
		seed.ResetIntervalDays = cfg.ResetInterval
	}
	if cfg.ActionCost > 0 {
		seed.ActionCost = cfg.ActionCost
	}
	if err := seed.Validate(); err != nil {
		return err
	}
	if err := s.seeder.SeedMissing(ctx, seed.ToMap()); err != nil {
		return s.internal("bootstrap", err)
	}
	s.provider.Invalidate()
	return nil
}

func (s *Service) internal(op string, err error) error {
	if shared.IsDomainError(err) {
		return err
	}
	s.logger.Error("Settings operation failed", zap.String("operation", op), zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, "Failed to access settings")
}
