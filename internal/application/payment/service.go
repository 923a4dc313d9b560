// Package payment sells credit packages through the payment gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/payment"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WebhookDedupTTL is how long processed gateway event ids are remembered
const WebhookDedupTTL = 72 * time.Hour

var (
	errPackageNotFound    = shared.NewDomainError(shared.CodeNotFound, "Credit package not found")
	errPaymentsDisabled   = shared.NewDomainError(shared.CodeInvalidState, "Payments are not configured")
	errInvalidWebhook     = shared.NewDomainError(shared.CodeInvalidInput, "Invalid webhook payload or signature")
	errGatewayUnavailable = shared.NewDomainError(shared.CodeInternal, "Payment provider is unavailable")
)

// Granter credits a principal inside the caller's transaction
type Granter interface {
	Grant(ctx context.Context, ref principal.Ref, amount int64, kind credit.Kind, description string) (int64, error)
}

// PackageInput creates or replaces a credit package
type PackageInput struct {
	Name     string
	Credits  int64
	Price    decimal.Decimal
	Currency string
	Active   *bool
}

// PurchaseResult carries what the client needs to confirm the payment
type PurchaseResult struct {
	Purchase     *payment.Purchase
	ClientSecret string
}

// Service manages packages and purchases. gateway and idempotency may be nil:
// without a gateway purchases are rejected, without an idempotency store
// duplicate webhooks rely on the purchase status alone.
type Service struct {
	packages    payment.PackageRepository
	purchases   payment.PurchaseRepository
	granter     Granter
	gateway     payment.Gateway
	idempotency shared.IdempotencyStore
	txManager   shared.TransactionManager
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new payment Service
func NewService(
	packages payment.PackageRepository,
	purchases payment.PurchaseRepository,
	granter Granter,
	gateway payment.Gateway,
	idempotency shared.IdempotencyStore,
	txManager shared.TransactionManager,
	logger *zap.Logger,
) *Service {
	return &Service{
		packages:    packages,
		purchases:   purchases,
		granter:     granter,
		gateway:     gateway,
		idempotency: idempotency,
		txManager:   txManager,
		logger:      logger.Named("payment"),
		now:         time.Now,
	}
}

// ListPackages returns credit packages; activeOnly hides retired ones
func (s *Service) ListPackages(ctx context.Context, activeOnly bool) ([]payment.CreditPackage, error) {
	items, err := s.packages.List(ctx, activeOnly)
	if err != nil {
		return nil, s.internal("list_packages", err)
	}
	return items, nil
}

// CreatePackage adds a credit package
func (s *Service) CreatePackage(ctx context.Context, input PackageInput) (*payment.CreditPackage, error) {
	pkg, err := payment.NewCreditPackage(input.Name, input.Credits, input.Price, input.Currency)
	if err != nil {
		return nil, err
	}
	if input.Active != nil {
		pkg.SetActive(*input.Active)
	}
	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, s.internal("create_package", err)
	}
	return pkg, nil
}

// UpdatePackage replaces a credit package. Open purchases keep their snapshot.
func (s *Service) UpdatePackage(ctx context.Context, id uuid.UUID, input PackageInput) (*payment.CreditPackage, error) {
	pkg, err := s.findPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := pkg.Update(input.Name, input.Credits, input.Price, input.Currency); err != nil {
		return nil, err
	}
	if input.Active != nil {
		pkg.SetActive(*input.Active)
	}
	if err := s.packages.Update(ctx, pkg); err != nil {
		return nil, s.internal("update_package", err)
	}
	return pkg, nil
}

func (s *Service) findPackage(ctx context.Context, id uuid.UUID) (*payment.CreditPackage, error) {
	pkg, err := s.packages.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errPackageNotFound
		}
		return nil, s.internal("find_package", err)
	}
	return pkg, nil
}

// CreatePurchase records a pending purchase for userID and opens a payment
// intent for it at the gateway.
func (s *Service) CreatePurchase(ctx context.Context, userID, packageID uuid.UUID) (*PurchaseResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "create_purchase",
		telemetry.SpanAttrPrincipal, principal.RegisteredRef(userID).String())
	defer span.End()

	if s.gateway == nil {
		return nil, errPaymentsDisabled
	}
	pkg, err := s.findPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	purchase, err := payment.NewPurchase(userID, pkg)
	if err != nil {
		return nil, err
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		return nil, s.internal("create_purchase", err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrPurchaseID, purchase.ID.String())

	intent, err := s.gateway.CreatePaymentIntent(ctx, payment.PaymentIntentInput{
		AmountMinor: pkg.MinorUnits(),
		Currency:    pkg.Currency,
		Description: fmt.Sprintf("%d credits (%s)", pkg.Credits, pkg.Name),
		Metadata: map[string]string{
			"purchase_id": purchase.ID.String(),
			"user_id":     userID.String(),
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Failed to open payment intent", zap.String("purchase_id", purchase.ID.String()), zap.Error(err))
		if markErr := purchase.MarkFailed("payment intent could not be created"); markErr == nil {
			if err := s.purchases.Update(ctx, purchase); err != nil {
				s.logger.Warn("Failed to mark purchase failed", zap.Error(err))
			}
		}
		return nil, errGatewayUnavailable
	}

	purchase.AttachProviderRef(intent.ID)
	if err := s.purchases.Update(ctx, purchase); err != nil {
		return nil, s.internal("create_purchase", err)
	}
	return &PurchaseResult{Purchase: purchase, ClientSecret: intent.ClientSecret}, nil
}

// ListPurchases returns the purchases of userID, newest first
func (s *Service) ListPurchases(ctx context.Context, userID uuid.UUID) ([]payment.Purchase, error) {
	items, err := s.purchases.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.internal("list_purchases", err)
	}
	return items, nil
}

// HandleWebhook verifies and applies a gateway notification. Success grants
// the purchase credits in the same transaction that marks it paid; repeated
// deliveries of an event are no-ops.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "handle_webhook")
	defer span.End()

	if s.gateway == nil {
		return errPaymentsDisabled
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn("Rejected payment webhook", zap.Error(err))
		telemetry.RecordError(span, err)
		return errInvalidWebhook
	}
	telemetry.SetAttributes(span, "webhook_type", string(event.Type))
	if event.Type == payment.WebhookIgnored {
		return nil
	}

	key := "stripe:" + event.ID
	if s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, key, WebhookDedupTTL)
		if err != nil {
			return s.internal("handle_webhook", err)
		}
		if !fresh {
			s.logger.Debug("Skipping duplicate payment webhook", zap.String("event_id", event.ID))
			return nil
		}
	}

	switch event.Type {
	case payment.WebhookPaymentSucceeded:
		err = s.settle(ctx, event)
	case payment.WebhookPaymentFailed:
		err = s.fail(ctx, event)
	}
	if err != nil {
		if s.idempotency != nil {
			if releaseErr := s.idempotency.Release(ctx, key); releaseErr != nil {
				s.logger.Warn("Failed to release webhook id", zap.String("event_id", event.ID), zap.Error(releaseErr))
			}
		}
		telemetry.RecordError(span, err)
		return s.internal("handle_webhook", err)
	}
	return nil
}

func (s *Service) settle(ctx context.Context, event *payment.WebhookEvent) error {
	return s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		purchase, ok, err := s.lockPurchase(ctx, event)
		if !ok || err != nil {
			return err
		}
		if purchase.Status == payment.PurchaseStatusPaid {
			return nil
		}
		if err := purchase.MarkPaid(s.now()); err != nil {
			return err
		}
		if err := s.purchases.Update(ctx, purchase); err != nil {
			return err
		}
		if _, err := s.granter.Grant(ctx, principal.RegisteredRef(purchase.UserID), purchase.Credits,
			credit.KindPurchase, fmt.Sprintf("Purchase %s", purchase.ID)); err != nil {
			return err
		}
		s.logger.Info("Purchase paid",
			zap.String("purchase_id", purchase.ID.String()),
			zap.Int64("credits", purchase.Credits))
		return nil
	})
}

func (s *Service) fail(ctx context.Context, event *payment.WebhookEvent) error {
	return s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		purchase, ok, err := s.lockPurchase(ctx, event)
		if !ok || err != nil {
			return err
		}
		if purchase.Status != payment.PurchaseStatusPending {
			return nil
		}
		if err := purchase.MarkFailed(event.FailureReason); err != nil {
			return err
		}
		return s.purchases.Update(ctx, purchase)
	})
}

// lockPurchase loads the purchase behind event. Unknown refs are logged and
// reported as not ok, since a retry would not find them either.
func (s *Service) lockPurchase(ctx context.Context, event *payment.WebhookEvent) (*payment.Purchase, bool, error) {
	purchase, err := s.purchases.FindByProviderRefForUpdate(ctx, event.ProviderRef)
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("Payment webhook for unknown purchase",
			zap.String("event_id", event.ID),
			zap.String("provider_ref", event.ProviderRef))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return purchase, true, nil
}

func (s *Service) internal(op string, err error) error {
	if shared.IsDomainError(err) {
		return err
	}
	s.logger.Error("Payment operation failed", zap.String("operation", op), zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, "Failed to process payment request")
}
