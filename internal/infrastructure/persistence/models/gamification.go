package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/principal"
)

// EventTypeModel is the persistence model for the event type catalog.
type EventTypeModel struct {
	BaseModel
	Name           string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Description    string `gorm:"type:text"`
	PointsPerEvent int64  `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (EventTypeModel) TableName() string {
	return "event_types"
}

// ToDomain converts the persistence model to a domain EventType.
func (m *EventTypeModel) ToDomain() *gamification.EventType {
	return &gamification.EventType{
		BaseEntity:     m.BaseModel.ToDomain(),
		Name:           m.Name,
		Description:    m.Description,
		PointsPerEvent: m.PointsPerEvent,
	}
}

// EventTypeModelFromDomain creates a model from a domain EventType.
func EventTypeModelFromDomain(et *gamification.EventType) *EventTypeModel {
	m := &EventTypeModel{
		Name:           et.Name,
		Description:    et.Description,
		PointsPerEvent: et.PointsPerEvent,
	}
	m.FromDomainBaseEntity(et.BaseEntity)
	return m
}

// GamificationEventModel is one raw recorded event.
type GamificationEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	EventTypeID   uuid.UUID `gorm:"type:uuid;not null;index:idx_gam_events_principal,priority:3"`
	PrincipalKind string    `gorm:"type:varchar(20);not null;index:idx_gam_events_principal,priority:1"`
	PrincipalID   uuid.UUID `gorm:"type:uuid;not null;index:idx_gam_events_principal,priority:2"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (GamificationEventModel) TableName() string {
	return "gamification_events"
}

// GamificationEventModelFromDomain creates a model from a domain Event.
func GamificationEventModelFromDomain(e *gamification.Event) *GamificationEventModel {
	return &GamificationEventModel{
		ID:            e.ID,
		EventTypeID:   e.EventTypeID,
		PrincipalKind: string(e.Principal.Kind),
		PrincipalID:   e.Principal.ID,
		CreatedAt:     e.CreatedAt,
	}
}

// BadgeModel is the persistence model for badges.
type BadgeModel struct {
	BaseModel
	Name           string                   `gorm:"type:varchar(100);not null"`
	Description    string                   `gorm:"type:text"`
	EventTypeID    uuid.UUID                `gorm:"type:uuid;not null;index"`
	RequiredPoints int64                    `gorm:"not null;default:0"`
	Eligibility    gamification.Eligibility `gorm:"type:varchar(20);not null;default:'both'"`
}

// TableName returns the table name for GORM
func (BadgeModel) TableName() string {
	return "badges"
}

// ToDomain converts the persistence model to a domain Badge.
func (m *BadgeModel) ToDomain() *gamification.Badge {
	return &gamification.Badge{
		BaseEntity:     m.BaseModel.ToDomain(),
		Name:           m.Name,
		Description:    m.Description,
		EventTypeID:    m.EventTypeID,
		RequiredPoints: m.RequiredPoints,
		Eligibility:    m.Eligibility,
	}
}

// BadgeModelFromDomain creates a model from a domain Badge.
func BadgeModelFromDomain(b *gamification.Badge) *BadgeModel {
	m := &BadgeModel{
		Name:           b.Name,
		Description:    b.Description,
		EventTypeID:    b.EventTypeID,
		RequiredPoints: b.RequiredPoints,
		Eligibility:    b.Eligibility,
	}
	m.FromDomainBaseEntity(b.BaseEntity)
	return m
}

// UserGamificationModel is the derived aggregate keyed by principal and event type.
type UserGamificationModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	PrincipalKind string     `gorm:"type:varchar(20);not null;uniqueIndex:uq_user_gamification,priority:1"`
	PrincipalID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_user_gamification,priority:2"`
	EventTypeID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_user_gamification,priority:3"`
	Points        int64      `gorm:"not null;default:0"`
	BadgeID       *uuid.UUID `gorm:"type:uuid"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UserGamificationModel) TableName() string {
	return "user_gamifications"
}

// ToDomain converts the persistence model to a domain UserGamification.
func (m *UserGamificationModel) ToDomain() *gamification.UserGamification {
	return &gamification.UserGamification{
		ID:          m.ID,
		Principal:   principal.Ref{Kind: principal.Kind(m.PrincipalKind), ID: m.PrincipalID},
		EventTypeID: m.EventTypeID,
		Points:      m.Points,
		BadgeID:     m.BadgeID,
		UpdatedAt:   m.UpdatedAt,
	}
}

// UserGamificationModelFromDomain creates a model from a domain UserGamification.
func UserGamificationModelFromDomain(g *gamification.UserGamification) *UserGamificationModel {
	return &UserGamificationModel{
		ID:            g.ID,
		PrincipalKind: string(g.Principal.Kind),
		PrincipalID:   g.Principal.ID,
		EventTypeID:   g.EventTypeID,
		Points:        g.Points,
		BadgeID:       g.BadgeID,
		UpdatedAt:     g.UpdatedAt,
	}
}
