// Package identity resolves callers to principals and manages registered
// accounts and their tokens.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/auth"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Ledger is the part of the credit engine identity needs
type Ledger interface {
	Open(ctx context.Context, ref principal.Ref, amount int64, description string) (int64, error)
	Transfer(ctx context.Context, from, to principal.Ref, description string) (int64, error)
}

var errInvalidToken = shared.NewDomainError(shared.CodeUnauthorized, "Invalid or expired token")

// Resolver turns request credentials into a Principal
type Resolver struct {
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

// NewResolver creates a new identity resolver
func NewResolver(
	users principal.UserRepository,
	sessions principal.SessionRepository,
	tokens *auth.JWTService,
	blacklist auth.TokenBlacklist,
	txManager shared.TransactionManager,
	ledger Ledger,
	settingsProvider settings.Provider,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		blacklist: blacklist,
		txManager: txManager,
		ledger:    ledger,
		settings:  settingsProvider,
		logger:    logger.Named("identity"),
		now:       time.Now,
	}
}

// Resolve identifies the caller.
//
// A bearer token must be a valid, unrevoked access token of an active user;
// anything else fails with ErrUnauthorized. Without a token the anonymous id
// selects an active session. A missing, malformed or unknown id opens a new
// session funded with the anonymous default in one transaction.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (principal.Principal, Resolution, error) {
	if creds.BearerToken != "" {
		user, err := r.resolveToken(ctx, creds)
		if err != nil {
			return nil, Resolution{}, err
		}
		return principal.Registered{User: user}, Resolution{}, nil
	}

	if id, err := uuid.Parse(creds.AnonymousID); err == nil {
		session, err := r.sessions.FindByID(ctx, id)
		switch {
		case err == nil && session.IsActive():
			r.touchSession(ctx, session, creds.ClientIP)
			return principal.Anonymous{Session: session}, Resolution{}, nil
		case err != nil && !errors.Is(err, shared.ErrNotFound):
			r.logger.Error("Failed to load anonymous session", zap.String("session_id", id.String()), zap.Error(err))
			return nil, Resolution{}, shared.NewDomainError(shared.CodeInternal, "Failed to resolve session")
		}
	}

	session, err := r.openSession(ctx, creds)
	if err != nil {
		return nil, Resolution{}, err
	}
	return principal.Anonymous{Session: session}, Resolution{Created: true}, nil
}

// ValidateAccessToken checks signature, type and revocation
func (r *Resolver) ValidateAccessToken(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := r.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, errInvalidToken
	}
	revoked, err := r.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		r.logger.Error("Failed to check token blacklist", zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to validate token")
	}
	if revoked {
		return nil, shared.NewDomainError(shared.CodeUnauthorized, "Token has been revoked")
	}
	return claims, nil
}

func (r *Resolver) resolveToken(ctx context.Context, creds Credentials) (*principal.User, error) {
	claims, err := r.ValidateAccessToken(ctx, creds.BearerToken)
	if err != nil {
		return nil, err
	}
	userID, err := claims.GetUserUUID()
	if err != nil {
		return nil, errInvalidToken
	}

	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errInvalidToken
		}
		r.logger.Error("Failed to load user", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to resolve user")
	}
	if !user.IsActive() {
		r.logger.Warn("Token presented for inactive user", zap.String("user_id", user.ID.String()))
		return nil, shared.NewDomainError(shared.CodeUnauthorized, "Account has been deactivated")
	}

	now := r.now()
	if err := r.users.TouchActivity(ctx, user.ID, creds.ClientIP, now); err != nil {
		r.logger.Warn("Failed to record user activity", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	user.LastActivityAt = now
	user.LastSeenIP = creds.ClientIP
	return user, nil
}

func (r *Resolver) touchSession(ctx context.Context, session *principal.Session, ip string) {
	now := r.now()
	if err := r.sessions.TouchActivity(ctx, session.ID, ip, now); err != nil {
		r.logger.Warn("Failed to record session activity", zap.String("session_id", session.ID.String()), zap.Error(err))
		return
	}
	session.LastActivityAt = now
	session.IPAddress = ip
}

func (r *Resolver) openSession(ctx context.Context, creds Credentials) (*principal.Session, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "identity", "open_session")
	defer span.End()

	session := principal.NewSession(creds.ClientIP, creds.UserAgent)
	err := r.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := r.settings.Current(ctx)
		if err != nil {
			return err
		}
		if err := r.sessions.Create(ctx, session); err != nil {
			return err
		}
		session.Balance, err = r.ledger.Open(ctx, principal.AnonymousRef(session.ID), current.AnonymousDefaultCredits, "Anonymous session opened")
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		r.logger.Error("Failed to open anonymous session", zap.String("ip", creds.ClientIP), zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to open session")
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrPrincipal, principal.AnonymousRef(session.ID).String())
	r.logger.Debug("Opened anonymous session",
		zap.String("session_id", session.ID.String()),
		zap.Int64("balance", session.Balance))
	return session, nil
}
