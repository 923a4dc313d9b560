// Package metering charges for metered actions and feeds them into the
// gamification engine.
package metering

import (
	"context"
	"errors"
	"fmt"

	gamapp "github.com/meterly/backend/internal/application/gamification"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Charger is the part of the credit engine an action needs
type Charger interface {
	Charge(ctx context.Context, ref principal.Ref, amount int64, kind credit.Kind, description string) (int64, error)
	GetBalance(ctx context.Context, ref principal.Ref) (int64, error)
}

// EventRecorder is the part of the gamification engine an action needs
type EventRecorder interface {
	RecordEvent(ctx context.Context, ref principal.Ref, eventTypeName string) (*gamapp.RecordResult, error)
}

// ActionResult describes a performed action
type ActionResult struct {
	Action  string
	Cost    int64
	Balance int64
	// Event is nil when no event type carries the action's name
	Event *gamapp.RecordResult
}

// ActionService performs metered actions
type ActionService struct {
	charger   Charger
	recorder  EventRecorder
	txManager shared.TransactionManager
	settings  settings.Provider
	logger    *zap.Logger
}

// NewActionService creates a new action service
func NewActionService(charger Charger, recorder EventRecorder, txManager shared.TransactionManager, settingsProvider settings.Provider, logger *zap.Logger) *ActionService {
	return &ActionService{
		charger:   charger,
		recorder:  recorder,
		txManager: txManager,
		settings:  settingsProvider,
		logger:    logger.Named("metering"),
	}
}

// Perform charges action_cost credits and records a gamification event of
// the same name when such an event type exists. Both happen in one
// transaction: a short balance records nothing.
func (s *ActionService) Perform(ctx context.Context, ref principal.Ref, action string) (*ActionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "metering", "perform",
		telemetry.SpanAttrPrincipal, ref.String(),
		telemetry.SpanAttrEventType, action)
	defer span.End()

	action = gamification.NormalizeEventTypeName(action)
	if !gamification.IsValidEventTypeName(action) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Invalid action name")
	}

	result := &ActionResult{Action: action}
	err := s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.settings.Current(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		result.Cost = current.ActionCost

		if result.Cost > 0 {
			result.Balance, err = s.charger.Charge(ctx, ref, result.Cost, credit.KindUsage, "Action "+action)
		} else {
			result.Balance, err = s.charger.GetBalance(ctx, ref)
		}
		if err != nil {
			return err
		}

		event, err := s.recorder.RecordEvent(ctx, ref, action)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		result.Event = event
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if shared.IsDomainError(err) {
			return nil, err
		}
		s.logger.Error("Action failed",
			zap.String("principal", ref.String()),
			zap.String("action", action),
			zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, "Failed to perform action")
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrBalance, result.Balance)
	return result, nil
}
