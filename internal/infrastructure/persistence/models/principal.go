package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
)

// UserModel is the persistence model for the User domain entity.
type UserModel struct {
	BaseModel
	Username       string               `gorm:"type:varchar(100);not null;uniqueIndex"`
	Email          string               `gorm:"type:varchar(200);not null;uniqueIndex"`
	PasswordHash   string               `gorm:"type:varchar(255);not null"`
	Role           principal.Role       `gorm:"type:varchar(20);not null;default:'user'"`
	Tier           principal.Tier       `gorm:"type:varchar(20);not null;default:'freemium'"`
	Status         principal.UserStatus `gorm:"type:varchar(20);not null;default:'active'"`
	Balance        int64                `gorm:"not null;default:0;check:chk_users_balance,balance >= 0"`
	LastResetAt    *time.Time           `gorm:"index"`
	LastLoginAt    *time.Time
	LastSeenIP     string    `gorm:"type:varchar(45)"`
	LastActivityAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the persistence model to a domain User entity.
func (m *UserModel) ToDomain() *principal.User {
	return &principal.User{
		BaseEntity:     m.BaseModel.ToDomain(),
		Username:       m.Username,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		Role:           m.Role,
		Tier:           m.Tier,
		Status:         m.Status,
		Balance:        m.Balance,
		LastResetAt:    m.LastResetAt,
		LastLoginAt:    m.LastLoginAt,
		LastSeenIP:     m.LastSeenIP,
		LastActivityAt: m.LastActivityAt,
	}
}

// FromDomain populates the model from a domain User entity.
func (m *UserModel) FromDomain(u *principal.User) {
	m.FromDomainBaseEntity(u.BaseEntity)
	m.Username = u.Username
	m.Email = u.Email
	m.PasswordHash = u.PasswordHash
	m.Role = u.Role
	m.Tier = u.Tier
	m.Status = u.Status
	m.Balance = u.Balance
	m.LastResetAt = u.LastResetAt
	m.LastLoginAt = u.LastLoginAt
	m.LastSeenIP = u.LastSeenIP
	m.LastActivityAt = u.LastActivityAt
}

// UserModelFromDomain creates a new UserModel from a domain User entity.
func UserModelFromDomain(u *principal.User) *UserModel {
	m := &UserModel{}
	m.FromDomain(u)
	return m
}

// SessionModel is the persistence model for anonymous sessions.
type SessionModel struct {
	BaseModel
	IPAddress      string                  `gorm:"type:varchar(45)"`
	UserAgent      string                  `gorm:"type:varchar(255)"`
	Status         principal.SessionStatus `gorm:"type:varchar(20);not null;default:'active';index"`
	Balance        int64                   `gorm:"not null;default:0;check:chk_sessions_balance,balance >= 0"`
	MergedInto     *uuid.UUID              `gorm:"type:uuid"`
	LastActivityAt time.Time               `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SessionModel) TableName() string {
	return "anonymous_sessions"
}

// ToDomain converts the persistence model to a domain Session entity.
func (m *SessionModel) ToDomain() *principal.Session {
	return &principal.Session{
		BaseEntity:     m.BaseModel.ToDomain(),
		IPAddress:      m.IPAddress,
		UserAgent:      m.UserAgent,
		Status:         m.Status,
		Balance:        m.Balance,
		MergedInto:     m.MergedInto,
		LastActivityAt: m.LastActivityAt,
	}
}

// SessionModelFromDomain creates a new SessionModel from a domain Session entity.
func SessionModelFromDomain(s *principal.Session) *SessionModel {
	m := &SessionModel{
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		Status:         s.Status,
		Balance:        s.Balance,
		MergedInto:     s.MergedInto,
		LastActivityAt: s.LastActivityAt,
	}
	m.FromDomainBaseEntity(s.BaseEntity)
	return m
}
