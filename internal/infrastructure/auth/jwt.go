// Package auth issues and verifies the JWTs carried by registered users.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/meterly/backend/internal/infrastructure/config"
)

// TokenType tells access and refresh tokens apart when both share a secret
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const bearer = "Bearer"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
)

// Claims identify a registered user. Only access tokens carry the username
// and role; a refresh re-reads both from storage.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// GetUserUUID parses the user id claim
func (c *Claims) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID)
}

// GetRemainingTTL is how long the token stays valid, zero once expired.
// A revoked jti only needs to be remembered this long.
func (c *Claims) GetRemainingTTL() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(time.Until(c.ExpiresAt.Time), 0)
}

type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

type GenerateTokenInput struct {
	UserID   uuid.UUID
	Username string
	Role     string
}

type signingKey struct {
	secret []byte
	ttl    time.Duration
}

// JWTService signs HS256 tokens. Access and refresh tokens use separate
// secrets unless no refresh secret is configured.
type JWTService struct {
	issuer string
	keys   map[TokenType]signingKey
	parser *jwt.Parser
}

func NewJWTService(cfg config.JWTConfig) *JWTService {
	refreshSecret := cfg.RefreshSecret
	if refreshSecret == "" {
		refreshSecret = cfg.Secret
	}
	return &JWTService{
		issuer: cfg.Issuer,
		keys: map[TokenType]signingKey{
			TokenTypeAccess:  {secret: []byte(cfg.Secret), ttl: cfg.AccessTokenExpiration},
			TokenTypeRefresh: {secret: []byte(refreshSecret), ttl: cfg.RefreshTokenExpiration},
		},
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithIssuedAt(),
		),
	}
}

// AccessTokenExpiration is the access token lifetime
func (s *JWTService) AccessTokenExpiration() time.Duration {
	return s.keys[TokenTypeAccess].ttl
}

func (s *JWTService) GenerateTokenPair(input GenerateTokenInput) (*TokenPair, error) {
	now := time.Now()

	access := s.newClaims(input.UserID, TokenTypeAccess, now)
	access.Username = input.Username
	access.Role = input.Role
	accessToken, err := s.sign(access)
	if err != nil {
		return nil, err
	}
	refresh := s.newClaims(input.UserID, TokenTypeRefresh, now)
	refreshToken, err := s.sign(refresh)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  access.ExpiresAt.Time,
		RefreshTokenExpiresAt: refresh.ExpiresAt.Time,
		TokenType:             bearer,
	}, nil
}

func (s *JWTService) newClaims(userID uuid.UUID, typ TokenType, now time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.keys[typ].ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:    userID.String(),
		TokenType: typ,
	}
}

func (s *JWTService) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.keys[claims.TokenType].secret)
}

func (s *JWTService) ValidateAccessToken(token string) (*Claims, error) {
	return s.validate(token, TokenTypeAccess)
}

func (s *JWTService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.validate(token, TokenTypeRefresh)
}

func (s *JWTService) validate(raw string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	secret := s.keys[want].secret
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.TokenType != want:
		return nil, ErrInvalidTokenType
	case claims.UserID == "" || claims.UserID != claims.Subject:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
