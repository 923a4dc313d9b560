package principal

import (
	"regexp"
	"strings"
	"time"

	"github.com/meterly/backend/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
)

// UserStatus represents the status of a user
type UserStatus string

const (
	UserStatusActive      UserStatus = "active"
	UserStatusDeactivated UserStatus = "deactivated"
)

// Tier selects which default balance a periodic reset restores
type Tier string

const (
	TierFreemium Tier = "freemium"
	TierPremium  Tier = "premium"
)

// IsValid checks if the tier is valid
func (t Tier) IsValid() bool {
	return t == TierFreemium || t == TierPremium
}

// Password cost for bcrypt
const bcryptCost = 12

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	letterRegex   = regexp.MustCompile(`[a-zA-Z]`)
	digitRegex    = regexp.MustCompile(`[0-9]`)
)

// User is a registered principal with credentials and a credit balance.
// Balance is only changed through the credit engine.
type User struct {
	shared.BaseEntity
	Username       string
	Email          string
	PasswordHash   string
	Role           Role
	Tier           Tier
	Status         UserStatus
	Balance        int64
	LastResetAt    *time.Time
	LastLoginAt    *time.Time
	LastSeenIP     string
	LastActivityAt time.Time
}

// NewUser creates an active user with a zero balance
func NewUser(username, email, password string) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to hash password")
	}

	base := shared.NewBaseEntity()
	return &User{
		BaseEntity:     base,
		Username:       strings.ToLower(strings.TrimSpace(username)),
		Email:          email,
		PasswordHash:   hash,
		Role:           RoleUser,
		Tier:           TierFreemium,
		Status:         UserStatusActive,
		LastActivityAt: base.CreatedAt,
	}, nil
}

// VerifyPassword checks a plaintext password against the stored hash
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// SetPassword replaces the password hash
func (u *User) SetPassword(password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return shared.NewDomainError(shared.CodeInternal, "Failed to hash password")
	}
	u.PasswordHash = hash
	u.Touch()
	return nil
}

// SetRole changes the user's role. Guests are never registered users.
func (u *User) SetRole(role Role) error {
	if !role.IsValid() || role == RoleGuest {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid role")
	}
	u.Role = role
	u.Touch()
	return nil
}

// SetTier changes the billing tier
func (u *User) SetTier(tier Tier) error {
	if !tier.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid tier")
	}
	u.Tier = tier
	u.Touch()
	return nil
}

// Deactivate blocks further authentication
func (u *User) Deactivate() {
	u.Status = UserStatusDeactivated
	u.Touch()
}

// Activate re-enables a deactivated user
func (u *User) Activate() {
	u.Status = UserStatusActive
	u.Touch()
}

// IsActive returns true if the user may authenticate
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// RecordLogin stamps a successful login
func (u *User) RecordLogin(ip string, at time.Time) {
	u.LastLoginAt = &at
	u.LastSeenIP = ip
	u.LastActivityAt = at
	u.UpdatedAt = at
}

// DueForReset reports whether the periodic reset should run for this user
func (u *User) DueForReset(now time.Time, intervalDays int) bool {
	if u.LastResetAt == nil {
		return true
	}
	return !u.LastResetAt.After(now.AddDate(0, 0, -intervalDays))
}

// TierDefault picks the reset balance for the user's tier
func (u *User) TierDefault(freemium, premium int64) int64 {
	if u.Tier == TierPremium {
		return premium
	}
	return freemium
}

func validateUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) < 3 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Username must be at least 3 characters")
	}
	if len(username) > 100 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Username cannot exceed 100 characters")
	}
	if !usernameRegex.MatchString(username) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Username can only contain letters, numbers, underscores, hyphens, and dots")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 200 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Email cannot exceed 200 characters")
	}
	if !emailRegex.MatchString(email) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Password must be at least 8 characters")
	}
	if len(password) > 72 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Password cannot exceed 72 characters")
	}
	if !letterRegex.MatchString(password) || !digitRegex.MatchString(password) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Password must contain at least one letter and one number")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
