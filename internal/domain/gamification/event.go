package gamification

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
)

// Event is an append-only fact: principal did one occurrence of an event type
type Event struct {
	ID          uuid.UUID
	EventTypeID uuid.UUID
	Principal   principal.Ref
	CreatedAt   time.Time
}

// NewEvent creates an event stamped now
func NewEvent(eventTypeID uuid.UUID, ref principal.Ref) *Event {
	return &Event{
		ID:          uuid.New(),
		EventTypeID: eventTypeID,
		Principal:   ref,
		CreatedAt:   time.Now(),
	}
}
