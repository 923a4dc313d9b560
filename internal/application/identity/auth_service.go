package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/auth"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

var errInvalidCredentials = shared.NewDomainError(shared.CodeUnauthorized, "Invalid username or password")

// AuthService handles registration, login and token lifecycle
type AuthService struct {
	users     principal.UserRepository
	sessions  principal.SessionRepository
	tokens    *auth.JWTService
	blacklist auth.TokenBlacklist
	txManager shared.TransactionManager
	ledger    Ledger
	settings  settings.Provider
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users principal.UserRepository,
	sessions principal.SessionRepository,
	tokens *auth.JWTService,
	blacklist auth.TokenBlacklist,
	txManager shared.TransactionManager,
	ledger Ledger,
	settingsProvider settings.Provider,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		blacklist: blacklist,
		txManager: txManager,
		ledger:    ledger,
		settings:  settingsProvider,
		logger:    logger.Named("auth"),
		now:       time.Now,
	}
}

// Register creates a user funded with the freemium default. When the caller
// was an active anonymous session, its balance moves to the new account and
// the session is closed, all in the same transaction.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "identity", "register")
	defer span.End()

	user, err := principal.NewUser(input.Username, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	var merged int64
	err = s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if exists, err := s.users.ExistsByUsername(ctx, user.Username); err != nil {
			return err
		} else if exists {
			return shared.NewDomainError(shared.CodeAlreadyExists, "Username is already taken")
		}
		if exists, err := s.users.ExistsByEmail(ctx, user.Email); err != nil {
			return err
		} else if exists {
			return shared.NewDomainError(shared.CodeAlreadyExists, "Email is already registered")
		}

		current, err := s.settings.Current(ctx)
		if err != nil {
			return err
		}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		ref := principal.RegisteredRef(user.ID)
		if user.Balance, err = s.ledger.Open(ctx, ref, current.FreemiumDefaultCredits, "Account opened"); err != nil {
			return err
		}

		if input.AnonymousSessionID == nil {
			return nil
		}
		merged, err = s.mergeSession(ctx, input, user)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if shared.IsDomainError(err) {
			return nil, err
		}
		s.logger.Error("Failed to register user", zap.String("username", user.Username), zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to create account")
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Int64("merged_credits", merged))

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	result.MergedCredits = merged
	return result, nil
}

// mergeSession moves an active session's balance into user. Unknown or
// already merged sessions are skipped.
func (s *AuthService) mergeSession(ctx context.Context, input RegisterInput, user *principal.User) (int64, error) {
	session, err := s.sessions.FindByID(ctx, *input.AnonymousSessionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !session.IsActive() {
		return 0, nil
	}

	moved, err := s.ledger.Transfer(ctx,
		principal.AnonymousRef(session.ID),
		principal.RegisteredRef(user.ID),
		"Merged anonymous session into account")
	if err != nil {
		return 0, err
	}
	if err := session.MergeInto(user.ID); err != nil {
		return 0, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return 0, err
	}
	user.Balance += moved
	return moved, nil
}

// Login verifies the password and issues a token pair
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	s.logger.Info("Login attempt", zap.String("username", username))

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("User not found during login", zap.String("username", username))
			return nil, errInvalidCredentials
		}
		s.logger.Error("Failed to load user during login", zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to log in")
	}

	if !user.VerifyPassword(input.Password) {
		s.logger.Warn("Invalid password attempt", zap.String("username", username))
		return nil, errInvalidCredentials
	}
	if !user.IsActive() {
		s.logger.Warn("Login attempt for deactivated account", zap.String("username", username))
		return nil, shared.NewDomainError(shared.CodeUnauthorized, "Account has been deactivated")
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	user.RecordLogin(input.IP, s.now())
	if err := s.users.Update(ctx, user); err != nil {
		// The tokens are valid either way
		s.logger.Error("Failed to update user after successful login", zap.Error(err))
	}
	result.User = ToUserInfo(user)

	s.logger.Info("User logged in successfully",
		zap.String("username", username),
		zap.String("user_id", user.ID.String()))
	return result, nil
}

// Refresh exchanges a refresh token for a new pair. The used refresh token is
// revoked so it cannot be replayed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.logger.Warn("Refresh token validation failed", zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeUnauthorized, "Invalid or expired refresh token")
	}
	revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.Error("Failed to check token blacklist", zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to refresh token")
	}
	if revoked {
		return nil, shared.NewDomainError(shared.CodeUnauthorized, "Refresh token has been revoked")
	}

	userID, err := claims.GetUserUUID()
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeUnauthorized, "Invalid refresh token")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeUnauthorized, "Invalid refresh token")
		}
		s.logger.Error("Failed to load user during refresh", zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to refresh token")
	}
	if !user.IsActive() {
		return nil, shared.NewDomainError(shared.CodeUnauthorized, "Account has been deactivated")
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	if err := s.blacklist.AddToBlacklist(ctx, claims.ID, claims.GetRemainingTTL()); err != nil {
		s.logger.Error("Failed to revoke used refresh token", zap.Error(err))
	}
	return result, nil
}

// Logout revokes the access token and, when given, the refresh token for
// the rest of their lifetimes.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	claims, err := s.tokens.ValidateAccessToken(input.AccessToken)
	if err != nil {
		return errInvalidToken
	}
	if err := s.blacklist.AddToBlacklist(ctx, claims.ID, claims.GetRemainingTTL()); err != nil {
		s.logger.Error("Failed to blacklist access token", zap.Error(err))
		return shared.NewDomainError(shared.CodeInternal, "Failed to log out")
	}

	if input.RefreshToken != "" {
		refresh, err := s.tokens.ValidateRefreshToken(input.RefreshToken)
		if err == nil && refresh.UserID == claims.UserID {
			if err := s.blacklist.AddToBlacklist(ctx, refresh.ID, refresh.GetRemainingTTL()); err != nil {
				s.logger.Error("Failed to blacklist refresh token", zap.Error(err))
			}
		}
	}

	s.logger.Info("User logged out", zap.String("user_id", claims.UserID))
	return nil
}

func (s *AuthService) issue(user *principal.User) (*AuthResult, error) {
	pair, err := s.tokens.GenerateTokenPair(auth.GenerateTokenInput{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	})
	if err != nil {
		s.logger.Error("Failed to generate token pair", zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to generate authentication tokens")
	}
	return &AuthResult{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		TokenType:             pair.TokenType,
		User:                  ToUserInfo(user),
	}, nil
}
