package dto

import (
	"net/http"

	"github.com/meterly/backend/internal/domain/shared"
)

// Error code constants organized by category. Domain codes are reused
// verbatim so a DomainError maps to the wire without translation.

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = shared.CodeInternal
)

// Validation error codes
const (
	// ErrCodeValidation is used when request binding or validation fails
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeInvalidInput is used when a domain constructor rejects input
	ErrCodeInvalidInput = shared.CodeInvalidInput
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "INVALID_JSON"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = shared.CodeUnauthorized
	// ErrCodeForbidden is used when the principal lacks permission
	ErrCodeForbidden = shared.CodeForbidden
	// ErrCodeCouponNotOwned is used when a coupon is bound to someone else
	ErrCodeCouponNotOwned = shared.CodeCouponNotOwned
)

// Resource error codes
const (
	ErrCodeNotFound      = shared.CodeNotFound
	ErrCodeAlreadyExists = shared.CodeAlreadyExists
	ErrCodeConflict      = shared.CodeConflict
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = shared.CodeInvalidState
	// ErrCodeInsufficientCredits is used when a charge exceeds the balance
	ErrCodeInsufficientCredits = shared.CodeInsufficientCredits
	// ErrCodeCouponExpired is used when a redeemed coupon has expired
	ErrCodeCouponExpired = shared.CodeCouponExpired
)

// Transport error codes
const (
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized:   http.StatusUnauthorized,
	ErrCodeForbidden:      http.StatusForbidden,
	ErrCodeCouponNotOwned: http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeInsufficientCredits: http.StatusUnprocessableEntity,
	ErrCodeCouponExpired:       http.StatusUnprocessableEntity,

	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
