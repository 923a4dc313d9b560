package identity

import (
	"context"
	"time"

	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"go.uber.org/zap"
)

// SessionSweeper deletes anonymous sessions idle for longer than the
// configured TTL, together with their ledger and gamification rows.
type SessionSweeper struct {
	sessions principal.SessionRepository
	settings settings.Provider
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionSweeper creates a new sweeper
func NewSessionSweeper(sessions principal.SessionRepository, settingsProvider settings.Provider, logger *zap.Logger) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		settings: settingsProvider,
		logger:   logger.Named("session_sweeper"),
		now:      time.Now,
	}
}

// Sweep runs one pass and returns how many sessions were removed
func (s *SessionSweeper) Sweep(ctx context.Context) (int64, error) {
	current, err := s.settings.Current(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().AddDate(0, 0, -current.AnonymousSessionTTLDays)

	deleted, err := s.sessions.DeleteStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("Removed stale anonymous sessions",
			zap.Int64("count", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
