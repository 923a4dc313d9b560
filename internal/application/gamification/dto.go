package gamification

import (
	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/gamification"
)

// EventTypeInput creates or replaces an event type
type EventTypeInput struct {
	Name           string
	Description    string
	PointsPerEvent int64
}

// BadgeInput creates or replaces a badge. EventTypeID is ignored on update.
type BadgeInput struct {
	Name           string
	Description    string
	EventTypeID    uuid.UUID
	RequiredPoints int64
	Eligibility    gamification.Eligibility
}
