package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so a DomainError created
// with a custom message still matches the sentinel of its category.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeConflict            = "CONFLICT"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidState        = "INVALID_STATE"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeCouponExpired       = "COUPON_EXPIRED"
	CodeCouponNotOwned      = "COUPON_NOT_OWNED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Common domain errors
var (
	// ErrUnauthorized is the authentication failure: missing, invalid or revoked credentials.
	ErrUnauthorized = NewDomainError(CodeUnauthorized, "Authentication required")
	// ErrForbidden is the authorization failure: authenticated but not allowed.
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrConflict            = NewDomainError(CodeConflict, "Resource is in use")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrInsufficientCredits = NewDomainError(CodeInsufficientCredits, "Insufficient credits")
	ErrCouponExpired       = NewDomainError(CodeCouponExpired, "Coupon has expired")
	ErrCouponNotOwned      = NewDomainError(CodeCouponNotOwned, "Coupon is bound to another account")
	ErrInternal            = NewDomainError(CodeInternal, "An internal error occurred")
)

// IsDomainError reports whether err is (or wraps) a DomainError.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
