// Package settings serves and administers runtime switches.
package settings

import (
	"context"
	"time"

	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// DefaultCacheTTL bounds how stale a cached snapshot may get without a change
// notification.
const DefaultCacheTTL = 5 * time.Second

// CachedProvider implements settings.Provider on top of the settings table
type CachedProvider struct {
	snapshot *cache.Snapshot[settings.Settings]
	logger   *zap.Logger
}

var _ settings.Provider = (*CachedProvider)(nil)

// NewCachedProvider creates a provider that reloads at most once per ttl
func NewCachedProvider(repo settings.Repository, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{
		snapshot: cache.NewSnapshot(ttl, func(ctx context.Context) (settings.Settings, error) {
			values, err := repo.All(ctx)
			if err != nil {
				return settings.Settings{}, err
			}
			return settings.FromMap(settings.Defaults(), values)
		}),
		logger: logger.Named("settings"),
	}
}

// Current returns the cached settings
func (p *CachedProvider) Current(ctx context.Context) (settings.Settings, error) {
	return p.snapshot.Get(ctx)
}

// Invalidate drops the cached value
func (p *CachedProvider) Invalidate() {
	p.snapshot.Invalidate()
}

// Watch invalidates the cache on every change published through notifier.
// It blocks until ctx is done.
func (p *CachedProvider) Watch(ctx context.Context, notifier settings.ChangeNotifier) error {
	return notifier.Listen(ctx, func() {
		p.logger.Debug("Settings changed, invalidating cache")
		p.Invalidate()
	})
}
