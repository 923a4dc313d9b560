package gamification

import (
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// Webhook event names
const (
	EventRecorded    = "gamification_event"
	EventBadgeEarned = "badge_earned"
)

const aggregateType = "UserGamification"

// RecordedEvent is published after an event and its recomputation commit
type RecordedEvent struct {
	shared.BaseDomainEvent
	PrincipalKind principal.Kind `json:"principal_kind"`
	PrincipalID   string         `json:"principal_id"`
	EventTypeName string         `json:"event_type"`
	Points        int64          `json:"points"`
	BadgeID       string         `json:"badge_id,omitempty"`
}

// NewRecordedEvent creates a gamification_event notification
func NewRecordedEvent(g *UserGamification, eventTypeName string) *RecordedEvent {
	e := &RecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventRecorded, aggregateType, g.ID),
		PrincipalKind:   g.Principal.Kind,
		PrincipalID:     g.Principal.ID.String(),
		EventTypeName:   eventTypeName,
		Points:          g.Points,
	}
	if g.BadgeID != nil {
		e.BadgeID = g.BadgeID.String()
	}
	return e
}

// BadgeEarnedEvent is published when the current badge of an aggregate changes
type BadgeEarnedEvent struct {
	shared.BaseDomainEvent
	PrincipalKind principal.Kind `json:"principal_kind"`
	PrincipalID   string         `json:"principal_id"`
	EventTypeName string         `json:"event_type"`
	BadgeID       string         `json:"badge_id"`
	BadgeName     string         `json:"badge_name"`
	Points        int64          `json:"points"`
}

// NewBadgeEarnedEvent creates a badge_earned notification
func NewBadgeEarnedEvent(g *UserGamification, eventTypeName string, badge *Badge) *BadgeEarnedEvent {
	return &BadgeEarnedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventBadgeEarned, aggregateType, g.ID),
		PrincipalKind:   g.Principal.Kind,
		PrincipalID:     g.Principal.ID.String(),
		EventTypeName:   eventTypeName,
		BadgeID:         badge.ID.String(),
		BadgeName:       badge.Name,
		Points:          g.Points,
	}
}
