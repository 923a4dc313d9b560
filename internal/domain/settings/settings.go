// Package settings exposes admin-editable runtime switches as a typed struct.
package settings

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/shared"
)

// Setting keys as stored in the settings table
const (
	KeyDisableCredits          = "disable_credits"
	KeyEnableCoupons           = "enable_coupons"
	KeyAnonymousDefaultCredits = "anonymous_default_credits"
	KeyFreemiumDefaultCredits  = "freemium_default_credits"
	KeyPremiumDefaultCredits   = "premium_default_credits"
	KeyResetIntervalDays       = "reset_interval_days"
	KeyActionCost              = "action_cost"
	KeyAnonymousSessionTTLDays = "anonymous_session_ttl_days"
	KeyDemoCouponTypeID        = "demo_coupon_type_id"
)

// Settings is a snapshot of all runtime switches
type Settings struct {
	DisableCredits          bool       `json:"disable_credits"`
	EnableCoupons           bool       `json:"enable_coupons"`
	AnonymousDefaultCredits int64      `json:"anonymous_default_credits"`
	FreemiumDefaultCredits  int64      `json:"freemium_default_credits"`
	PremiumDefaultCredits   int64      `json:"premium_default_credits"`
	ResetIntervalDays       int        `json:"reset_interval_days"`
	ActionCost              int64      `json:"action_cost"`
	AnonymousSessionTTLDays int        `json:"anonymous_session_ttl_days"`
	DemoCouponTypeID        *uuid.UUID `json:"demo_coupon_type_id,omitempty"`
}

// Defaults returns the values used when a key is missing from storage
func Defaults() Settings {
	return Settings{
		EnableCoupons:           true,
		AnonymousDefaultCredits: 10,
		FreemiumDefaultCredits:  100,
		PremiumDefaultCredits:   1000,
		ResetIntervalDays:       30,
		ActionCost:              1,
		AnonymousSessionTTLDays: 30,
	}
}

// Provider returns the current settings. Implementations may cache briefly
// but must pick up admin changes within a bounded time.
type Provider interface {
	Current(ctx context.Context) (Settings, error)
}

// ChangeNotifier fans settings changes out to every running instance
type ChangeNotifier interface {
	NotifyChanged(ctx context.Context) error
	// Listen calls fn for each change published by any instance. It blocks
	// until ctx is done.
	Listen(ctx context.Context, fn func()) error
}

// Repository stores settings as key/value strings
type Repository interface {
	All(ctx context.Context) (map[string]string, error)
	Upsert(ctx context.Context, values map[string]string) error
}

// FromMap overlays stored values onto base. Unknown keys are ignored.
func FromMap(base Settings, values map[string]string) (Settings, error) {
	s := base
	for k, v := range values {
		var err error
		switch k {
		case KeyDisableCredits:
			s.DisableCredits, err = strconv.ParseBool(v)
		case KeyEnableCoupons:
			s.EnableCoupons, err = strconv.ParseBool(v)
		case KeyAnonymousDefaultCredits:
			s.AnonymousDefaultCredits, err = strconv.ParseInt(v, 10, 64)
		case KeyFreemiumDefaultCredits:
			s.FreemiumDefaultCredits, err = strconv.ParseInt(v, 10, 64)
		case KeyPremiumDefaultCredits:
			s.PremiumDefaultCredits, err = strconv.ParseInt(v, 10, 64)
		case KeyResetIntervalDays:
			s.ResetIntervalDays, err = strconv.Atoi(v)
		case KeyActionCost:
			s.ActionCost, err = strconv.ParseInt(v, 10, 64)
		case KeyAnonymousSessionTTLDays:
			s.AnonymousSessionTTLDays, err = strconv.Atoi(v)
		case KeyDemoCouponTypeID:
			s.DemoCouponTypeID = nil
			if v != "" {
				var id uuid.UUID
				id, err = uuid.Parse(v)
				if err == nil {
					s.DemoCouponTypeID = &id
				}
			}
		}
		if err != nil {
			return base, shared.NewDomainError(shared.CodeInvalidInput, "Invalid value for setting "+k)
		}
	}
	return s, s.Validate()
}

// ToMap serializes every key
func (s Settings) ToMap() map[string]string {
	demo := ""
	if s.DemoCouponTypeID != nil {
		demo = s.DemoCouponTypeID.String()
	}
	return map[string]string{
		KeyDisableCredits:          strconv.FormatBool(s.DisableCredits),
		KeyEnableCoupons:           strconv.FormatBool(s.EnableCoupons),
		KeyAnonymousDefaultCredits: strconv.FormatInt(s.AnonymousDefaultCredits, 10),
		KeyFreemiumDefaultCredits:  strconv.FormatInt(s.FreemiumDefaultCredits, 10),
		KeyPremiumDefaultCredits:   strconv.FormatInt(s.PremiumDefaultCredits, 10),
		KeyResetIntervalDays:       strconv.Itoa(s.ResetIntervalDays),
		KeyActionCost:              strconv.FormatInt(s.ActionCost, 10),
		KeyAnonymousSessionTTLDays: strconv.Itoa(s.AnonymousSessionTTLDays),
		KeyDemoCouponTypeID:        demo,
	}
}

// Validate checks value ranges
func (s Settings) Validate() error {
	switch {
	case s.AnonymousDefaultCredits < 0, s.FreemiumDefaultCredits < 0, s.PremiumDefaultCredits < 0:
		return shared.NewDomainError(shared.CodeInvalidInput, "Default credits cannot be negative")
	case s.ResetIntervalDays < 1:
		return shared.NewDomainError(shared.CodeInvalidInput, "Reset interval must be at least one day")
	case s.ActionCost < 1:
		return shared.NewDomainError(shared.CodeInvalidInput, "Action cost must be positive")
	case s.AnonymousSessionTTLDays < 1:
		return shared.NewDomainError(shared.CodeInvalidInput, "Session TTL must be at least one day")
	}
	return nil
}
