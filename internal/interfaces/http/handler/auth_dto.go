package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/application/identity"
	"github.com/meterly/backend/internal/domain/principal"
)

// =====================
// Auth Request DTOs
// =====================

// RegisterRequest represents the request body for account registration
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest represents the request body for user login
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest optionally names the refresh token to revoke with the access token
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest represents the request body for password change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=128"`
}

// UpdateUserRequest represents the admin patch of a user
type UpdateUserRequest struct {
	Role   *principal.Role `json:"role" binding:"omitempty,oneof=user admin"`
	Tier   *principal.Tier `json:"tier" binding:"omitempty,oneof=freemium premium"`
	Active *bool           `json:"active"`
}

// =====================
// Auth Response DTOs
// =====================

// TokenResponse represents the token data in auth responses
type TokenResponse struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

// UserResponse represents a registered user
type UserResponse struct {
	ID             uuid.UUID            `json:"id"`
	Username       string               `json:"username"`
	Email          string               `json:"email"`
	Role           principal.Role       `json:"role"`
	Tier           principal.Tier       `json:"tier"`
	Status         principal.UserStatus `json:"status"`
	Balance        int64                `json:"balance"`
	LastLoginAt    *time.Time           `json:"last_login_at,omitempty"`
	LastResetAt    *time.Time           `json:"last_reset_at,omitempty"`
	LastActivityAt time.Time            `json:"last_activity_at"`
	CreatedAt      time.Time            `json:"created_at"`
}

// AuthResponse is returned by register, login and refresh
type AuthResponse struct {
	Token         TokenResponse `json:"token"`
	User          UserResponse  `json:"user"`
	MergedCredits int64         `json:"merged_credits,omitempty"`
}

// PrincipalResponse describes the caller, registered or anonymous
type PrincipalResponse struct {
	Kind           principal.Kind `json:"kind"`
	ID             uuid.UUID      `json:"id"`
	Role           principal.Role `json:"role"`
	Balance        int64          `json:"balance"`
	Username       string         `json:"username,omitempty"`
	Email          string         `json:"email,omitempty"`
	Tier           principal.Tier `json:"tier,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// MessageResponse carries a human readable confirmation
type MessageResponse struct {
	Message string `json:"message"`
}

func toUserResponse(u *identity.UserInfo) UserResponse {
	return UserResponse{
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

func toAuthResponse(result *identity.AuthResult) AuthResponse {
	return AuthResponse{
		Token: TokenResponse{
			AccessToken:           result.AccessToken,
			RefreshToken:          result.RefreshToken,
			AccessTokenExpiresAt:  result.AccessTokenExpiresAt,
			RefreshTokenExpiresAt: result.RefreshTokenExpiresAt,
			TokenType:             result.TokenType,
		},
		User:          toUserResponse(&result.User),
		MergedCredits: result.MergedCredits,
	}
}

func toPrincipalResponse(p principal.Principal) PrincipalResponse {
	ref := p.Ref()
	resp := PrincipalResponse{
		Kind:           ref.Kind,
		ID:             ref.ID,
		Role:           p.Role(),
		Balance:        p.Balance(),
		CreatedAt:      p.CreatedAt(),
		LastActivityAt: p.LastActivityAt(),
	}
	if r, ok := p.(principal.Registered); ok {
		resp.Username = r.User.Username
		resp.Email = r.User.Email
		resp.Tier = r.User.Tier
	}
	return resp
}
