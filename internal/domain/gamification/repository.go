package gamification

import (
	"context"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
)

// EventTypeRepository persists the event type catalog
type EventTypeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*EventType, error)
	FindByName(ctx context.Context, name string) (*EventType, error)
	ExistsByName(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error)
	List(ctx context.Context) ([]EventType, error)
	Create(ctx context.Context, et *EventType) error
	Update(ctx context.Context, et *EventType) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EventRepository stores raw events
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	Count(ctx context.Context, ref principal.Ref, eventTypeID uuid.UUID) (int64, error)
	ExistsForEventType(ctx context.Context, eventTypeID uuid.UUID) (bool, error)
}

// BadgeRepository persists badges
type BadgeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Badge, error)
	ListByEventType(ctx context.Context, eventTypeID uuid.UUID) ([]Badge, error)
	List(ctx context.Context) ([]Badge, error)
	Create(ctx context.Context, badge *Badge) error
	Update(ctx context.Context, badge *Badge) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByEventType(ctx context.Context, eventTypeID uuid.UUID) error
}

// ProgressRepository persists UserGamification aggregates
type ProgressRepository interface {
	Find(ctx context.Context, ref principal.Ref, eventTypeID uuid.UUID) (*UserGamification, error)
	// FindForUpdate locks the aggregate row if it exists.
	FindForUpdate(ctx context.Context, ref principal.Ref, eventTypeID uuid.UUID) (*UserGamification, error)
	// Upsert inserts or overwrites the row keyed by (principal, event type).
	Upsert(ctx context.Context, g *UserGamification) error
	ListByPrincipal(ctx context.Context, ref principal.Ref) ([]UserGamification, error)
	ListByEventType(ctx context.Context, eventTypeID uuid.UUID) ([]UserGamification, error)
	DeleteByEventType(ctx context.Context, eventTypeID uuid.UUID) error
	Rankings(ctx context.Context, limit int) ([]Ranking, error)
}
