package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
)

// Credentials is what a request presents to identify its caller
type Credentials struct {
	BearerToken string
	AnonymousID string
	ClientIP    string
	UserAgent   string
}

// Resolution describes side effects of resolving a principal
type Resolution struct {
	// Created is true when a new anonymous session was opened
	Created bool
}

// RegisterInput contains the input for registration
type RegisterInput struct {
	Username string
	Email    string
	Password string
	IP       string
	// AnonymousSessionID, when set, names a session whose balance moves to the new account
	AnonymousSessionID *uuid.UUID
}

// LoginInput contains the input for user login
type LoginInput struct {
	Username string
	Password string
	IP       string
}

// LogoutInput names the tokens to revoke
type LogoutInput struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by register, login and refresh
type AuthResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
	User                  UserInfo
	// MergedCredits is the balance moved from an anonymous session on register
	MergedCredits int64
}

// UserInfo is the public view of a registered user
type UserInfo struct {
	ID             uuid.UUID
	Username       string
	Email          string
	Role           principal.Role
	Tier           principal.Tier
	Status         principal.UserStatus
	Balance        int64
	LastLoginAt    *time.Time
	LastResetAt    *time.Time
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// UserListResult is a page of users
type UserListResult struct {
	Users      []UserInfo
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// UpdateUserInput changes admin-managed fields. Nil fields are left unchanged.
type UpdateUserInput struct {
	Role   *principal.Role
	Tier   *principal.Tier
	Active *bool
}

// ToUserInfo converts a user to its public view
func ToUserInfo(u *principal.User) UserInfo {
	return UserInfo{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Role:           u.Role,
		Tier:           u.Tier,
		Status:         u.Status,
		Balance:        u.Balance,
		LastLoginAt:    u.LastLoginAt,
		LastResetAt:    u.LastResetAt,
		LastActivityAt: u.LastActivityAt,
		CreatedAt:      u.CreatedAt,
	}
}
