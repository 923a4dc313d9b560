package principal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/shared"
)

// UserRepository persists registered users
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *User) error
	// Update saves profile fields. It never writes the balance column.
	Update(ctx context.Context, user *User) error
	TouchActivity(ctx context.Context, id uuid.UUID, ip string, at time.Time) error
	MarkReset(ctx context.Context, id uuid.UUID, at time.Time) error
	// FindDueForReset returns active users never reset or reset before cutoff.
	FindDueForReset(ctx context.Context, cutoff time.Time, limit int) ([]User, error)
	List(ctx context.Context, filter shared.Filter) ([]User, int64, error)
}

// SessionRepository persists anonymous sessions
type SessionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Session, error)
	Create(ctx context.Context, session *Session) error
	Update(ctx context.Context, session *Session) error
	TouchActivity(ctx context.Context, id uuid.UUID, ip string, at time.Time) error
	// DeleteStale removes active sessions idle since before cutoff and returns the count.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}
