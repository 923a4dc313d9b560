// Package integration manages webhook subscriptions and fans business events
// out to them.
package integration

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/integration"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Envelope is the JSON body of every delivery
type Envelope struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// WebhookDispatcher posts business events to subscribed integrations.
// Deliveries are best-effort: failures are logged and counted, never retried.
type WebhookDispatcher struct {
	integrations integration.Repository
	sender       integration.Sender
	metrics      *telemetry.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

var _ shared.EventHandler = (*WebhookDispatcher)(nil)

// NewWebhookDispatcher creates a new dispatcher
func NewWebhookDispatcher(integrations integration.Repository, sender integration.Sender, metrics *telemetry.Metrics, logger *zap.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		integrations: integrations,
		sender:       sender,
		metrics:      metrics,
		logger:       logger.Named("webhooks"),
		now:          time.Now,
	}
}

// EventTypes returns the business events integrations can subscribe to
func (d *WebhookDispatcher) EventTypes() []string {
	return []string{
		credit.EventCreditUsage,
		credit.EventCreditGrant,
		credit.EventCreditReset,
		gamification.EventRecorded,
		gamification.EventBadgeEarned,
		coupon.EventCouponRedeemed,
	}
}

// Handle delivers one domain event. It never fails the bus.
func (d *WebhookDispatcher) Handle(ctx context.Context, event shared.DomainEvent) error {
	d.Trigger(ctx, Envelope{
		ID:         event.EventID().String(),
		Event:      event.EventType(),
		OccurredAt: event.OccurredAt(),
		Data:       event,
	})
	return nil
}

// Trigger posts env to every active integration subscribed to env.Event and
// waits for all attempts to finish.
func (d *WebhookDispatcher) Trigger(ctx context.Context, env Envelope) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhooks", "trigger", telemetry.SpanAttrEventType, env.Event)
	defer span.End()

	active, err := d.integrations.ListActive(ctx)
	if err != nil {
		d.logger.Error("Failed to load integrations", zap.String("event", env.Event), zap.Error(err))
		telemetry.RecordError(span, err)
		return
	}

	targets := make([]integration.Integration, 0, len(active))
	for _, in := range active {
		if in.Subscribes(env.Event) {
			targets = append(targets, in)
		}
	}
	if len(targets) == 0 {
		return
	}

	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = d.now()
	}
	body, err := json.Marshal(env)
	if err != nil {
		d.logger.Error("Failed to encode webhook payload", zap.String("event", env.Event), zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for i := range targets {
		wg.Add(1)
		go func(in *integration.Integration) {
			defer wg.Done()
			d.deliver(ctx, in, env, body)
		}(&targets[i])
	}
	wg.Wait()
	telemetry.SetAttributes(span, "targets", len(targets))
}

// deliver sends one POST and reports the status code, or 0 on transport errors
func (d *WebhookDispatcher) deliver(ctx context.Context, in *integration.Integration, env Envelope, body []byte) (int, error) {
	status, err := d.sender.Send(ctx, integration.Delivery{
		ID:        env.ID,
		URL:       in.URL,
		Event:     env.Event,
		Body:      body,
		Signature: in.Sign(body),
	})
	ok := err == nil && integration.IsSuccess(status)
	d.metrics.RecordWebhookDelivery(ok)

	logger := d.logger.With(
		zap.String("integration_id", in.ID.String()),
		zap.String("event", env.Event),
		zap.Int("status", status))
	if !ok {
		logger.Warn("Webhook delivery failed", zap.Error(err))
		return status, err
	}

	if err := d.integrations.MarkTriggered(ctx, in.ID, d.now()); err != nil {
		logger.Warn("Failed to record webhook trigger time", zap.Error(err))
	}
	logger.Debug("Webhook delivered")
	return status, nil
}
