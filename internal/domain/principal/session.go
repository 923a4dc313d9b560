package principal

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/shared"
)

// SessionStatus is the lifecycle state of an anonymous session
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	// SessionStatusMerged marks a session whose balance moved to a registered user.
	SessionStatusMerged SessionStatus = "merged"
)

// Session is an anonymous principal identified by an opaque id the client
// echoes back on each request.
type Session struct {
	shared.BaseEntity
	IPAddress      string
	UserAgent      string
	Status         SessionStatus
	Balance        int64
	MergedInto     *uuid.UUID
	LastActivityAt time.Time
}

// NewSession creates an active session with a zero balance. The opening
// balance is granted separately so the ledger reconciles.
func NewSession(ip, userAgent string) *Session {
	base := shared.NewBaseEntity()
	if len(userAgent) > 255 {
		userAgent = userAgent[:255]
	}
	return &Session{
		BaseEntity:     base,
		IPAddress:      ip,
		UserAgent:      userAgent,
		Status:         SessionStatusActive,
		LastActivityAt: base.CreatedAt,
	}
}

// IsActive reports whether the session can still act as a principal
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// MergeInto closes the session after its balance moved to userID
func (s *Session) MergeInto(userID uuid.UUID) error {
	if !s.IsActive() {
		return shared.NewDomainError(shared.CodeInvalidState, "Session is no longer active")
	}
	s.Status = SessionStatusMerged
	s.MergedInto = &userID
	s.Touch()
	return nil
}

// IsStale reports whether the session was idle for longer than ttl
func (s *Session) IsStale(now time.Time, ttl time.Duration) bool {
	return s.LastActivityAt.Before(now.Add(-ttl))
}
