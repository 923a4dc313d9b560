package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/meterly/backend/internal/application/identity"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/logger"
	"github.com/meterly/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Principal context keys and headers
const (
	PrincipalKey          = "principal"
	PrincipalRefKey       = "principal_ref"
	AnonymousCreatedKey   = "anonymous_created"
	AnonymousIDHeader     = "X-Anonymous-ID"
	AuthHeaderKey         = "Authorization"
	BearerPrefix          = "Bearer "
	errMsgRegistration    = "A registered account is required"
	errMsgAdminRequired   = "Administrator role required"
	errMsgMalformedHeader = "Invalid authorization header format"
)

// PrincipalResolver resolves request credentials to a caller
type PrincipalResolver interface {
	Resolve(ctx context.Context, creds identity.Credentials) (principal.Principal, identity.Resolution, error)
}

// ResolvePrincipal identifies the caller of every request it wraps. A bearer
// token must be valid; without one the X-Anonymous-ID header selects (or
// opens) an anonymous session whose id is echoed back in the same header.
func ResolvePrincipal(resolver PrincipalResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			abortWithError(c, shared.NewDomainError(shared.CodeUnauthorized, errMsgMalformedHeader))
			return
		}

		p, res, err := resolver.Resolve(c.Request.Context(), identity.Credentials{
			BearerToken: token,
			AnonymousID: c.GetHeader(AnonymousIDHeader),
			ClientIP:    c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
		})
		if err != nil {
			if !shared.IsDomainError(err) {
				log.Error("Failed to resolve principal", zap.Error(err))
			}
			abortWithError(c, err)
			return
		}

		ref := p.Ref()
		if ref.Kind == principal.KindAnonymous {
			c.Header(AnonymousIDHeader, ref.ID.String())
		}
		c.Set(PrincipalKey, p)
		c.Set(PrincipalRefKey, ref)
		c.Set(AnonymousCreatedKey, res.Created)

		ctx, _ := logger.WithPrincipal(c.Request.Context(), logger.FromContext(c.Request.Context()), ref.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRegistered rejects anonymous callers
func RequireRegistered() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil || p.Ref().Kind != principal.KindRegistered {
			abortWithError(c, shared.NewDomainError(shared.CodeUnauthorized, errMsgRegistration))
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. Anonymous callers get
// 401, registered non-admins 403.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		switch {
		case p == nil || p.Ref().Kind != principal.KindRegistered:
			abortWithError(c, shared.NewDomainError(shared.CodeUnauthorized, errMsgRegistration))
			return
		case !principal.IsAdmin(p):
			abortWithError(c, shared.NewDomainError(shared.CodeForbidden, errMsgAdminRequired))
			return
		}
		c.Next()
	}
}

// BearerToken extracts the token from the Authorization header. ok is false
// when the header is present but not a bearer credential.
func BearerToken(c *gin.Context) (token string, ok bool) {
	header := c.GetHeader(AuthHeaderKey)
	if header == "" {
		return "", true
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

// GetPrincipal retrieves the resolved principal from gin.Context
func GetPrincipal(c *gin.Context) principal.Principal {
	if v, exists := c.Get(PrincipalKey); exists {
		if p, ok := v.(principal.Principal); ok {
			return p
		}
	}
	return nil
}

// MustGetPrincipal retrieves the principal or panics if the middleware did not run
func MustGetPrincipal(c *gin.Context) principal.Principal {
	p := GetPrincipal(c)
	if p == nil {
		panic("principal not found in context")
	}
	return p
}

// GetPrincipalRef returns the ref of the resolved principal, or a zero Ref
func GetPrincipalRef(c *gin.Context) principal.Ref {
	if v, exists := c.Get(PrincipalRefKey); exists {
		if ref, ok := v.(principal.Ref); ok {
			return ref
		}
	}
	return principal.Ref{}
}

func abortWithError(c *gin.Context, err error) {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			dto.NewErrorResponseWithRequestID(dto.ErrCodeInternal, "An unexpected error occurred", getRequestID(c)))
		return
	}
	c.AbortWithStatusJSON(dto.GetHTTPStatus(de.Code),
		dto.NewErrorResponseWithRequestID(de.Code, de.Message, getRequestID(c)))
}
