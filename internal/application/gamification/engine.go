// Package gamification records activity events and keeps the derived
// points and badge aggregates in step with them.
package gamification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Ranking limits
const (
	DefaultRankingLimit = 10
	MaxRankingLimit     = 100
)

var errEventTypeNotFound = shared.NewDomainError(shared.CodeNotFound, "Event type not found")

// RecordResult is the outcome of RecordEvent
type RecordResult struct {
	Event        *gamification.Event
	Progress     *gamification.UserGamification
	Badge        *gamification.Badge
	BadgeChanged bool
}

// Engine records events and recomputes aggregates
type Engine struct {
	eventTypes gamification.EventTypeRepository
	events     gamification.EventRepository
	badges     gamification.BadgeRepository
	progress   gamification.ProgressRepository
	txManager  shared.TransactionManager
	publisher  shared.EventPublisher
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates a new gamification engine. metrics may be nil.
func NewEngine(
	eventTypes gamification.EventTypeRepository,
	events gamification.EventRepository,
	badges gamification.BadgeRepository,
	progress gamification.ProgressRepository,
	txManager shared.TransactionManager,
	publisher shared.EventPublisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *Engine {
	if publisher == nil {
		publisher = shared.NopEventPublisher{}
	}
	return &Engine{
		eventTypes: eventTypes,
		events:     events,
		badges:     badges,
		progress:   progress,
		txManager:  txManager,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger.Named("gamification"),
		now:        time.Now,
	}
}

// RecordEvent appends one occurrence of eventTypeName for ref and recomputes
// the aggregate in the same transaction. Notifications go out after commit.
func (e *Engine) RecordEvent(ctx context.Context, ref principal.Ref, eventTypeName string) (*RecordResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "gamification", "record_event",
		telemetry.SpanAttrPrincipal, ref.String(),
		telemetry.SpanAttrEventType, eventTypeName)
	defer span.End()

	et, err := e.eventTypes.FindByName(ctx, gamification.NormalizeEventTypeName(eventTypeName))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errEventTypeNotFound
		}
		return nil, e.fail(span, "record_event", ref, err)
	}

	result := &RecordResult{Event: gamification.NewEvent(et.ID, ref)}
	err = e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := e.events.Create(ctx, result.Event); err != nil {
			return err
		}
		var err error
		result.Progress, result.Badge, result.BadgeChanged, err = e.recompute(ctx, ref, et)
		if err != nil {
			return err
		}
		e.txManager.AfterCommit(ctx, func() { e.notify(ctx, result, et) })
		return nil
	})
	if err != nil {
		return nil, e.fail(span, "record_event", ref, err)
	}

	telemetry.SetAttributes(span, "points", result.Progress.Points, "badge_changed", result.BadgeChanged)
	return result, nil
}

// Recompute derives the aggregate of (ref, eventTypeID) from the event count.
// Running it again without new events yields the same row.
func (e *Engine) Recompute(ctx context.Context, ref principal.Ref, eventTypeID uuid.UUID) (*gamification.UserGamification, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "gamification", "recompute",
		telemetry.SpanAttrPrincipal, ref.String())
	defer span.End()

	et, err := e.eventTypes.FindByID(ctx, eventTypeID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errEventTypeNotFound
		}
		return nil, e.fail(span, "recompute", ref, err)
	}

	var g *gamification.UserGamification
	err = e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		g, _, _, err = e.recompute(ctx, ref, et)
		return err
	})
	if err != nil {
		return nil, e.fail(span, "recompute", ref, err)
	}
	return g, nil
}

// RecomputeEventType refreshes every aggregate of an event type, e.g. after
// its badge ladder changed. It returns the number of aggregates touched.
func (e *Engine) RecomputeEventType(ctx context.Context, eventTypeID uuid.UUID) (int, error) {
	et, err := e.eventTypes.FindByID(ctx, eventTypeID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, errEventTypeNotFound
		}
		return 0, err
	}

	var touched int
	err = e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		rows, err := e.progress.ListByEventType(ctx, et.ID)
		if err != nil {
			return err
		}
		for i := range rows {
			if _, _, _, err := e.recompute(ctx, rows[i].Principal, et); err != nil {
				return err
			}
		}
		touched = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return touched, nil
}

func (e *Engine) recompute(ctx context.Context, ref principal.Ref, et *gamification.EventType) (*gamification.UserGamification, *gamification.Badge, bool, error) {
	g, err := e.progress.FindForUpdate(ctx, ref, et.ID)
	if errors.Is(err, shared.ErrNotFound) {
		g, err = gamification.NewUserGamification(ref, et.ID), nil
	}
	if err != nil {
		return nil, nil, false, err
	}

	count, err := e.events.Count(ctx, ref, et.ID)
	if err != nil {
		return nil, nil, false, err
	}
	ladder, err := e.badges.ListByEventType(ctx, et.ID)
	if err != nil {
		return nil, nil, false, err
	}

	score := gamification.Compute(count, et, ladder, ref.Kind)
	changed := g.Apply(score, e.now())
	if err := e.progress.Upsert(ctx, g); err != nil {
		return nil, nil, false, err
	}
	return g, score.Badge, changed, nil
}

func (e *Engine) notify(ctx context.Context, result *RecordResult, et *gamification.EventType) {
	earned := result.BadgeChanged && result.Badge != nil
	e.metrics.RecordGamificationEvent(et.Name, earned)

	events := []shared.DomainEvent{gamification.NewRecordedEvent(result.Progress, et.Name)}
	if earned {
		events = append(events, gamification.NewBadgeEarnedEvent(result.Progress, et.Name, result.Badge))
	}
	if err := e.publisher.Publish(ctx, events...); err != nil {
		e.logger.Warn("Failed to publish gamification events",
			zap.String("principal", result.Progress.Principal.String()),
			zap.Error(err))
	}
}

// GetProgress returns the aggregate of ref for an event type
func (e *Engine) GetProgress(ctx context.Context, ref principal.Ref, eventTypeName string) (*gamification.UserGamification, error) {
	et, err := e.eventTypes.FindByName(ctx, gamification.NormalizeEventTypeName(eventTypeName))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errEventTypeNotFound
		}
		return nil, e.internal("get_progress", ref, err)
	}
	g, err := e.progress.Find(ctx, ref, et.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "No progress recorded for this event type")
		}
		return nil, e.internal("get_progress", ref, err)
	}
	return g, nil
}

// ListProgress returns every aggregate of ref
func (e *Engine) ListProgress(ctx context.Context, ref principal.Ref) ([]gamification.UserGamification, error) {
	rows, err := e.progress.ListByPrincipal(ctx, ref)
	if err != nil {
		return nil, e.internal("list_progress", ref, err)
	}
	return rows, nil
}

// GetRankings returns the leaderboard across all event types. limit is
// clamped to [1, MaxRankingLimit]; zero means DefaultRankingLimit.
func (e *Engine) GetRankings(ctx context.Context, limit int) ([]gamification.Ranking, error) {
	switch {
	case limit <= 0:
		limit = DefaultRankingLimit
	case limit > MaxRankingLimit:
		limit = MaxRankingLimit
	}
	rankings, err := e.progress.Rankings(ctx, limit)
	if err != nil {
		return nil, e.internal("get_rankings", principal.Ref{}, err)
	}
	gamification.SortRankings(rankings)
	return rankings, nil
}

func (e *Engine) fail(span trace.Span, op string, ref principal.Ref, err error) error {
	err = e.internal(op, ref, err)
	telemetry.RecordError(span, err)
	return err
}

func (e *Engine) internal(op string, ref principal.Ref, err error) error {
	if shared.IsDomainError(err) {
		return err
	}
	e.logger.Error("Gamification operation failed",
		zap.String("operation", op),
		zap.String("principal", ref.String()),
		zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, "Failed to process gamification request")
}
