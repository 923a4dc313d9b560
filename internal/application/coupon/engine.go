// Package coupon issues single-use coupons and redeems them into credits.
package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DemoCouponTTL is the lifetime of a coupon issued through IssueDemo
const DemoCouponTTL = 15 * time.Minute

const maxCodeAttempts = 5

var (
	errCouponNotFound     = shared.NewDomainError(shared.CodeNotFound, "Coupon not found")
	errCouponTypeNotFound = shared.NewDomainError(shared.CodeNotFound, "Coupon type not found")
	errCouponsDisabled    = shared.NewDomainError(shared.CodeInvalidState, "Coupons are disabled")
)

// Granter credits a principal inside the caller's transaction
type Granter interface {
	Grant(ctx context.Context, ref principal.Ref, amount int64, kind credit.Kind, description string) (int64, error)
}

// Engine runs the coupon lifecycle
type Engine struct {
	types     coupon.CouponTypeRepository
	coupons   coupon.CouponRepository
	granter   Granter
	txManager shared.TransactionManager
	settings  settings.Provider
	publisher shared.EventPublisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	now       func() time.Time
	generate  func() (string, error)
}

// NewEngine creates a new coupon engine
func NewEngine(
	types coupon.CouponTypeRepository,
	coupons coupon.CouponRepository,
	granter Granter,
	txManager shared.TransactionManager,
	settingsProvider settings.Provider,
	publisher shared.EventPublisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *Engine {
	if publisher == nil {
		publisher = shared.NopEventPublisher{}
	}
	return &Engine{
		types:     types,
		coupons:   coupons,
		granter:   granter,
		txManager: txManager,
		settings:  settingsProvider,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("coupon"),
		now:       time.Now,
		generate:  coupon.GenerateCode,
	}
}

// Issue creates an active coupon of the given type with a fresh code
func (e *Engine) Issue(ctx context.Context, input IssueInput) (*coupon.Coupon, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "coupon", "issue")
	defer span.End()

	if err := e.requireEnabled(ctx); err != nil {
		return nil, e.fail(span, "issue", err)
	}
	ct, err := e.types.FindByID(ctx, input.CouponTypeID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errCouponTypeNotFound
		}
		return nil, e.fail(span, "issue", err)
	}
	if !ct.Active {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Coupon type is inactive")
	}

	code, err := e.freshCode(ctx)
	if err != nil {
		return nil, e.fail(span, "issue", err)
	}
	c, err := coupon.NewCoupon(code, ct.ID, input.BoundTo, input.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := e.coupons.Create(ctx, c); err != nil {
		return nil, e.fail(span, "issue", err)
	}

	e.logger.Info("Coupon issued",
		zap.String("coupon_type_id", ct.ID.String()),
		zap.Bool("bound", c.BoundTo != nil))
	return c, nil
}

// IssueDemo issues a coupon of the configured demo type bound to ref that
// expires after DemoCouponTTL.
func (e *Engine) IssueDemo(ctx context.Context, ref principal.Ref) (*coupon.Coupon, error) {
	current, err := e.settings.Current(ctx)
	if err != nil {
		return nil, e.internal("issue_demo", err)
	}
	if current.DemoCouponTypeID == nil {
		return nil, shared.NewDomainError(shared.CodeNotFound, "No demo coupon type is configured")
	}
	expiresAt := e.now().Add(DemoCouponTTL)
	return e.Issue(ctx, IssueInput{
		CouponTypeID: *current.DemoCouponTypeID,
		BoundTo:      &ref,
		ExpiresAt:    &expiresAt,
	})
}

func (e *Engine) freshCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := e.generate()
		if err != nil {
			return "", err
		}
		taken, err := e.coupons.ExistsByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		e.logger.Debug("Coupon code collision", zap.Int("attempt", attempt))
	}
	return "", errors.New("could not generate a unique coupon code")
}

// Redeem spends the coupon identified by code for ref and grants its credit
// value in the same transaction.
//
// An expired coupon is marked expired and that change is committed before
// ErrCouponExpired is returned.
func (e *Engine) Redeem(ctx context.Context, code string, ref principal.Ref) (*RedeemResult, error) {
	code = coupon.NormalizeCode(code)
	ctx, span := telemetry.StartServiceSpan(ctx, "coupon", "redeem",
		telemetry.SpanAttrPrincipal, ref.String(),
		telemetry.SpanAttrCouponCode, code)
	defer span.End()

	if err := e.requireEnabled(ctx); err != nil {
		return nil, e.fail(span, "redeem", err)
	}
	if !coupon.IsWellFormedCode(code) {
		return nil, errCouponNotFound
	}

	var (
		result  *RedeemResult
		expired bool
	)
	err := e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		c, err := e.coupons.FindByCodeForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errCouponNotFound
			}
			return err
		}
		from := c.Status
		if err := c.Redeem(ref, e.now()); err != nil {
			if !errors.Is(err, shared.ErrCouponExpired) {
				return err
			}
			if _, err := e.coupons.Transition(ctx, c, from); err != nil {
				return err
			}
			expired = true
			return nil
		}

		ok, err := e.coupons.Transition(ctx, c, from)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewDomainError(shared.CodeInvalidState, "Coupon was redeemed concurrently")
		}

		ct, err := e.types.FindByID(ctx, c.CouponTypeID)
		if err != nil {
			return err
		}
		balance, err := e.granter.Grant(ctx, ref, ct.CreditValue, credit.KindCouponRedemption, "Coupon "+c.Code)
		if err != nil {
			return err
		}

		result = &RedeemResult{Coupon: c, CreditValue: ct.CreditValue, Balance: balance}
		e.txManager.AfterCommit(ctx, func() {
			e.metrics.RecordCouponRedeemed()
			if err := e.publisher.Publish(ctx, coupon.NewRedeemedEvent(c, ct.CreditValue)); err != nil {
				e.logger.Warn("Failed to publish coupon_redeemed", zap.Error(err))
			}
		})
		return nil
	})
	if err != nil {
		return nil, e.fail(span, "redeem", err)
	}
	if expired {
		telemetry.AddEvent(span, "coupon_expired")
		return nil, shared.ErrCouponExpired
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrAmount, result.CreditValue, telemetry.SpanAttrBalance, result.Balance)
	return result, nil
}

// List returns coupons for administrators
func (e *Engine) List(ctx context.Context, filter coupon.Filter) (shared.Paginated[coupon.Coupon], error) {
	filter.Filter = filter.Filter.Normalize()
	if filter.Status != "" && !filter.Status.IsValid() {
		return shared.Paginated[coupon.Coupon]{}, shared.NewDomainError(shared.CodeInvalidInput, "Invalid coupon status")
	}
	items, total, err := e.coupons.List(ctx, filter)
	if err != nil {
		return shared.Paginated[coupon.Coupon]{}, e.internal("list", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// ListMine returns the coupons bound to or redeemed by ref
func (e *Engine) ListMine(ctx context.Context, ref principal.Ref) ([]coupon.Coupon, error) {
	items, err := e.coupons.ListByPrincipal(ctx, ref)
	if err != nil {
		return nil, e.internal("list_mine", err)
	}
	return items, nil
}

func (e *Engine) requireEnabled(ctx context.Context) error {
	current, err := e.settings.Current(ctx)
	if err != nil {
		return err
	}
	if !current.EnableCoupons {
		return errCouponsDisabled
	}
	return nil
}

func (e *Engine) fail(span trace.Span, op string, err error) error {
	err = e.internal(op, err)
	telemetry.RecordError(span, err)
	return err
}

func (e *Engine) internal(op string, err error) error {
	if shared.IsDomainError(err) {
		return err
	}
	e.logger.Error("Coupon operation failed", zap.String("operation", op), zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, "Failed to process coupon request")
}
