package persistence

import (
	"strings"

	"github.com/meterly/backend/internal/domain/shared"
)

// ValidateSortOrder returns "ASC" for any casing of asc and "DESC" otherwise
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "ASC") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns field when it is whitelisted, else defaultField.
// Only whitelisted names ever reach an ORDER BY.
func ValidateSortField(field string, allowed map[string]bool, defaultField string) string {
	if f := strings.TrimSpace(field); allowed[f] {
		return f
	}
	return defaultField
}

// UserSortFields are the users columns accepted by order_by
var UserSortFields = map[string]bool{
	"id":               true,
	"created_at":       true,
	"updated_at":       true,
	"username":         true,
	"email":            true,
	"balance":          true,
	"tier":             true,
	"status":           true,
	"last_login_at":    true,
	"last_activity_at": true,
}

// CouponSortFields are the coupons columns accepted by order_by
var CouponSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"code":        true,
	"status":      true,
	"expires_at":  true,
	"redeemed_at": true,
}

// orderClause builds "<field> <dir>, id ASC" from the filter. Without an
// explicit order_by the default field and direction apply.
func orderClause(filter shared.Filter, allowed map[string]bool, defaultField, defaultDir string) string {
	field := ValidateSortField(filter.OrderBy, allowed, defaultField)
	dir := defaultDir
	if filter.OrderDir != "" {
		dir = ValidateSortOrder(filter.OrderDir)
	}
	if field == "id" {
		return "id " + dir
	}
	return field + " " + dir + ", id ASC"
}
