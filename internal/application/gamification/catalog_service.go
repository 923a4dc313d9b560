package gamification

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/shared"
	"go.uber.org/zap"
)

var errBadgeNotFound = shared.NewDomainError(shared.CodeNotFound, "Badge not found")

// CatalogService administers event types and their badge ladders
type CatalogService struct {
	eventTypes gamification.EventTypeRepository
	events     gamification.EventRepository
	badges     gamification.BadgeRepository
	progress   gamification.ProgressRepository
	txManager  shared.TransactionManager
	engine     *Engine
	logger     *zap.Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	eventTypes gamification.EventTypeRepository,
	events gamification.EventRepository,
	badges gamification.BadgeRepository,
	progress gamification.ProgressRepository,
	txManager shared.TransactionManager,
	engine *Engine,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		eventTypes: eventTypes,
		events:     events,
		badges:     badges,
		progress:   progress,
		txManager:  txManager,
		engine:     engine,
		logger:     logger.Named("gamification_catalog"),
	}
}

// ListEventTypes returns the catalog ordered by name
func (s *CatalogService) ListEventTypes(ctx context.Context) ([]gamification.EventType, error) {
	items, err := s.eventTypes.List(ctx)
	if err != nil {
		return nil, s.wrap("list_event_types", err)
	}
	return items, nil
}

// GetEventType returns one event type
func (s *CatalogService) GetEventType(ctx context.Context, id uuid.UUID) (*gamification.EventType, error) {
	et, err := s.eventTypes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errEventTypeNotFound
		}
		return nil, s.wrap("get_event_type", err)
	}
	return et, nil
}

// CreateEventType adds an event type. Names are unique.
func (s *CatalogService) CreateEventType(ctx context.Context, input EventTypeInput) (*gamification.EventType, error) {
	et, err := gamification.NewEventType(input.Name, input.Description, input.PointsPerEvent)
	if err != nil {
		return nil, err
	}
	exists, err := s.eventTypes.ExistsByName(ctx, et.Name, nil)
	if err != nil {
		return nil, s.wrap("create_event_type", err)
	}
	if exists {
		return nil, shared.NewDomainError(shared.CodeAlreadyExists, "Event type name already exists")
	}
	if err := s.eventTypes.Create(ctx, et); err != nil {
		return nil, s.wrap("create_event_type", err)
	}
	s.logger.Info("Event type created", zap.String("name", et.Name), zap.Int64("points_per_event", et.PointsPerEvent))
	return et, nil
}

// UpdateEventType renames or re-describes an event type. Points per event can
// only change while no event references the type.
func (s *CatalogService) UpdateEventType(ctx context.Context, id uuid.UUID, input EventTypeInput) (*gamification.EventType, error) {
	var et *gamification.EventType
	err := s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		et, err = s.eventTypes.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errEventTypeNotFound
			}
			return err
		}
		referenced, err := s.events.ExistsForEventType(ctx, id)
		if err != nil {
			return err
		}
		if err := et.Update(input.Name, input.Description, input.PointsPerEvent, referenced); err != nil {
			return err
		}
		exists, err := s.eventTypes.ExistsByName(ctx, et.Name, &id)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewDomainError(shared.CodeAlreadyExists, "Event type name already exists")
		}
		return s.eventTypes.Update(ctx, et)
	})
	if err != nil {
		return nil, s.wrap("update_event_type", err)
	}
	return et, nil
}

// DeleteEventType removes an event type with its badges and aggregates.
// Types with recorded events cannot be deleted.
func (s *CatalogService) DeleteEventType(ctx context.Context, id uuid.UUID) error {
	err := s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		referenced, err := s.events.ExistsForEventType(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			return shared.NewDomainError(shared.CodeConflict, "Event type has recorded events and cannot be deleted")
		}
		if err := s.badges.DeleteByEventType(ctx, id); err != nil {
			return err
		}
		if err := s.progress.DeleteByEventType(ctx, id); err != nil {
			return err
		}
		if err := s.eventTypes.Delete(ctx, id); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errEventTypeNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return s.wrap("delete_event_type", err)
	}
	s.logger.Info("Event type deleted", zap.String("event_type_id", id.String()))
	return nil
}

// ListBadges returns every badge, or the ladder of one event type
func (s *CatalogService) ListBadges(ctx context.Context, eventTypeID *uuid.UUID) ([]gamification.Badge, error) {
	var (
		items []gamification.Badge
		err   error
	)
	if eventTypeID != nil {
		items, err = s.badges.ListByEventType(ctx, *eventTypeID)
	} else {
		items, err = s.badges.List(ctx)
	}
	if err != nil {
		return nil, s.wrap("list_badges", err)
	}
	return items, nil
}

// GetBadge returns one badge
func (s *CatalogService) GetBadge(ctx context.Context, id uuid.UUID) (*gamification.Badge, error) {
	b, err := s.badges.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errBadgeNotFound
		}
		return nil, s.wrap("get_badge", err)
	}
	return b, nil
}

// CreateBadge adds a rung to an event type's ladder and recomputes the
// existing aggregates of that type.
func (s *CatalogService) CreateBadge(ctx context.Context, input BadgeInput) (*gamification.Badge, error) {
	badge, err := gamification.NewBadge(input.Name, input.Description, input.EventTypeID,
		input.RequiredPoints, input.Eligibility)
	if err != nil {
		return nil, err
	}
	err = s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.eventTypes.FindByID(ctx, input.EventTypeID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errEventTypeNotFound
			}
			return err
		}
		if err := s.badges.Create(ctx, badge); err != nil {
			return err
		}
		return s.refresh(ctx, badge.EventTypeID)
	})
	if err != nil {
		return nil, s.wrap("create_badge", err)
	}
	return badge, nil
}

// UpdateBadge changes a badge definition
func (s *CatalogService) UpdateBadge(ctx context.Context, id uuid.UUID, input BadgeInput) (*gamification.Badge, error) {
	var badge *gamification.Badge
	err := s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		badge, err = s.badges.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errBadgeNotFound
			}
			return err
		}
		if err := badge.Update(input.Name, input.Description, input.RequiredPoints, input.Eligibility); err != nil {
			return err
		}
		if err := s.badges.Update(ctx, badge); err != nil {
			return err
		}
		return s.refresh(ctx, badge.EventTypeID)
	})
	if err != nil {
		return nil, s.wrap("update_badge", err)
	}
	return badge, nil
}

// DeleteBadge removes a badge. Holders fall back to the next lower rung.
func (s *CatalogService) DeleteBadge(ctx context.Context, id uuid.UUID) error {
	err := s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		badge, err := s.badges.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errBadgeNotFound
			}
			return err
		}
		if err := s.badges.Delete(ctx, id); err != nil {
			return err
		}
		return s.refresh(ctx, badge.EventTypeID)
	})
	if err != nil {
		return s.wrap("delete_badge", err)
	}
	return nil
}

func (s *CatalogService) refresh(ctx context.Context, eventTypeID uuid.UUID) error {
	n, err := s.engine.RecomputeEventType(ctx, eventTypeID)
	if err != nil {
		return err
	}
	s.logger.Debug("Recomputed aggregates after ladder change",
		zap.String("event_type_id", eventTypeID.String()),
		zap.Int("aggregates", n))
	return nil
}

func (s *CatalogService) wrap(op string, err error) error {
	if shared.IsDomainError(err) {
		return err
	}
	s.logger.Error("Catalog operation failed", zap.String("operation", op), zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, "Failed to update the gamification catalog")
}
