// Package credit implements the credit accounting engine: every balance
// change is a locked read, a guarded write and an appended ledger row in one
// transaction.
package credit

import (
	"context"
	"errors"
	"time"

	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultResetBatchSize bounds how many users ResetAll loads per query
const DefaultResetBatchSize = 100

// Engine owns every mutation of principal balances
type Engine struct {
	balances  credit.BalanceRepository
	ledger    credit.TransactionRepository
	users     principal.UserRepository
	txManager shared.TransactionManager
	settings  settings.Provider
	publisher shared.EventPublisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger

	resetBatchSize int
	now            func() time.Time
}

// NewEngine creates a new credit engine. metrics may be nil.
func NewEngine(
	balances credit.BalanceRepository,
	ledger credit.TransactionRepository,
	users principal.UserRepository,
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
		balances:       balances,
		ledger:         ledger,
		users:          users,
		txManager:      txManager,
		settings:       settingsProvider,
		publisher:      publisher,
		metrics:        metrics,
		logger:         logger.Named("credit"),
		resetBatchSize: DefaultResetBatchSize,
		now:            time.Now,
	}
}

// SetResetBatchSize overrides DefaultResetBatchSize
func (e *Engine) SetResetBatchSize(n int) {
	if n > 0 {
		e.resetBatchSize = n
	}
}

// GetBalance returns the current balance without side effects
func (e *Engine) GetBalance(ctx context.Context, ref principal.Ref) (int64, error) {
	balance, err := e.balances.GetBalance(ctx, ref)
	if err != nil {
		return 0, e.internal("get_balance", ref, err, "Failed to read balance")
	}
	return balance, nil
}

// Charge debits amount from the principal. The balance never goes below
// zero: a short balance fails with ErrInsufficientCredits and changes nothing.
// With credits disabled the current balance is returned unchanged.
func (e *Engine) Charge(ctx context.Context, ref principal.Ref, amount int64, kind credit.Kind, description string) (int64, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "charge",
		telemetry.SpanAttrPrincipal, ref.String(),
		telemetry.SpanAttrAmount, amount)
	defer span.End()

	if amount <= 0 {
		return 0, shared.NewDomainError(shared.CodeInvalidInput, "Charge amount must be positive")
	}
	if kind == "" {
		kind = credit.KindUsage
	}

	disabled, err := e.creditsDisabled(ctx)
	if err != nil {
		return 0, e.fail(span, "charge", ref, err)
	}
	if disabled {
		telemetry.AddEvent(span, "credits_disabled")
		return e.GetBalance(ctx, ref)
	}

	var row *credit.Transaction
	err = e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := e.balances.LockBalance(ctx, ref); err != nil {
			return err
		}
		balance, ok, err := e.balances.Debit(ctx, ref, amount)
		if err != nil {
			return err
		}
		if !ok {
			return shared.ErrInsufficientCredits
		}
		row, err = credit.NewDebit(ref, amount, kind, description, balance)
		if err != nil {
			return err
		}
		return e.append(ctx, row)
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientCredits) {
			e.metrics.RecordInsufficientCredits()
		}
		return 0, e.fail(span, "charge", ref, err)
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrBalance, row.BalanceAfter)
	return row.BalanceAfter, nil
}

// Grant adds amount to the principal. With credits disabled the current
// balance is returned unchanged, except for purchases and coupon redemptions
// whose value was already handed over.
func (e *Engine) Grant(ctx context.Context, ref principal.Ref, amount int64, kind credit.Kind, description string) (int64, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "grant",
		telemetry.SpanAttrPrincipal, ref.String(),
		telemetry.SpanAttrAmount, amount,
		telemetry.SpanAttrCreditKind, kind)
	defer span.End()

	if amount <= 0 {
		return 0, shared.NewDomainError(shared.CodeInvalidInput, "Grant amount must be positive")
	}
	if kind == "" {
		kind = credit.KindGrant
	}
	if kind == credit.KindUsage || kind == credit.KindReset {
		return 0, shared.NewDomainError(shared.CodeInvalidInput, "Invalid grant kind")
	}

	if !alwaysGranted(kind) {
		disabled, err := e.creditsDisabled(ctx)
		if err != nil {
			return 0, e.fail(span, "grant", ref, err)
		}
		if disabled {
			telemetry.AddEvent(span, "credits_disabled")
			return e.GetBalance(ctx, ref)
		}
	}

	balance, err := e.credit(ctx, ref, amount, kind, description)
	if err != nil {
		return 0, e.fail(span, "grant", ref, err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrBalance, balance)
	return balance, nil
}

// alwaysGranted kinds are applied even with credits disabled. A redeemed
// coupon or a paid purchase cannot be handed back.
func alwaysGranted(kind credit.Kind) bool {
	return kind == credit.KindPurchase || kind == credit.KindCouponRedemption
}

// Open writes the opening balance of a freshly created principal as an
// initial ledger row. It joins the caller's transaction when there is one.
func (e *Engine) Open(ctx context.Context, ref principal.Ref, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	balance, err := e.credit(ctx, ref, amount, credit.KindInitial, description)
	if err != nil {
		return 0, e.internal("open", ref, err, "Failed to open balance")
	}
	return balance, nil
}

// Transfer moves the whole balance of from to to. The source gets a usage row
// bringing it to zero and the target a grant row. It returns the amount moved.
func (e *Engine) Transfer(ctx context.Context, from, to principal.Ref, description string) (int64, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "transfer",
		telemetry.SpanAttrPrincipal, to.String(),
		"from", from.String())
	defer span.End()

	var moved int64
	err := e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		amount, err := e.balances.LockBalance(ctx, from)
		if err != nil {
			return err
		}
		if _, err := e.balances.LockBalance(ctx, to); err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}

		remaining, ok, err := e.balances.Debit(ctx, from, amount)
		if err != nil {
			return err
		}
		if !ok {
			return shared.ErrInsufficientCredits
		}
		debit, err := credit.NewDebit(from, amount, credit.KindUsage, description, remaining)
		if err != nil {
			return err
		}
		if err := e.append(ctx, debit); err != nil {
			return err
		}

		if _, err := e.creditLocked(ctx, to, amount, credit.KindGrant, description); err != nil {
			return err
		}
		moved = amount
		return nil
	})
	if err != nil {
		return 0, e.fail(span, "transfer", from, err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrAmount, moved)
	return moved, nil
}

// ListTransactions returns the principal's ledger, newest first
func (e *Engine) ListTransactions(ctx context.Context, ref principal.Ref, filter shared.Filter) (shared.Paginated[credit.Transaction], error) {
	filter = filter.Normalize()
	rows, total, err := e.ledger.ListByPrincipal(ctx, ref, filter)
	if err != nil {
		return shared.Paginated[credit.Transaction]{}, e.internal("list_transactions", ref, err, "Failed to list transactions")
	}
	return shared.NewPaginated(rows, total, filter.Page, filter.PageSize), nil
}

// Reconciliation compares a balance with the sum of its ledger rows
type Reconciliation struct {
	Balance   int64 `json:"balance"`
	LedgerSum int64 `json:"ledger_sum"`
}

// Balanced reports whether the ledger explains the balance
func (r Reconciliation) Balanced() bool {
	return r.Balance == r.LedgerSum
}

// Reconcile reads the balance and the ledger sum in one transaction
func (e *Engine) Reconcile(ctx context.Context, ref principal.Ref) (Reconciliation, error) {
	var out Reconciliation
	err := e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if out.Balance, err = e.balances.GetBalance(ctx, ref); err != nil {
			return err
		}
		out.LedgerSum, err = e.ledger.SumByPrincipal(ctx, ref)
		return err
	})
	if err != nil {
		return Reconciliation{}, e.internal("reconcile", ref, err, "Failed to reconcile balance")
	}
	return out, nil
}

func (e *Engine) credit(ctx context.Context, ref principal.Ref, amount int64, kind credit.Kind, description string) (int64, error) {
	var balance int64
	err := e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := e.balances.LockBalance(ctx, ref); err != nil {
			return err
		}
		var err error
		balance, err = e.creditLocked(ctx, ref, amount, kind, description)
		return err
	})
	return balance, err
}

// creditLocked expects the balance row to be locked already
func (e *Engine) creditLocked(ctx context.Context, ref principal.Ref, amount int64, kind credit.Kind, description string) (int64, error) {
	balance, err := e.balances.Credit(ctx, ref, amount)
	if err != nil {
		return 0, err
	}
	row, err := credit.NewCredit(ref, amount, kind, description, balance)
	if err != nil {
		return 0, err
	}
	if err := e.append(ctx, row); err != nil {
		return 0, err
	}
	return balance, nil
}

// append writes the ledger row and queues its notification for after commit
func (e *Engine) append(ctx context.Context, row *credit.Transaction) error {
	if err := e.ledger.Append(ctx, row); err != nil {
		return err
	}
	e.txManager.AfterCommit(ctx, func() {
		switch {
		case row.Kind == credit.KindReset:
		case row.IsDebit():
			if row.Kind == credit.KindUsage {
				e.metrics.RecordCharge(-row.Amount)
			}
		default:
			e.metrics.RecordGrant(string(row.Kind), row.Amount)
		}
		if err := e.publisher.Publish(ctx, credit.NewBalanceChangedEvent(row)); err != nil {
			e.logger.Warn("Failed to publish balance event",
				zap.String("principal", row.Principal.String()),
				zap.String("kind", string(row.Kind)),
				zap.Error(err))
		}
	})
	return nil
}

func (e *Engine) creditsDisabled(ctx context.Context) (bool, error) {
	current, err := e.settings.Current(ctx)
	if err != nil {
		return false, err
	}
	return current.DisableCredits, nil
}

func (e *Engine) fail(span trace.Span, op string, ref principal.Ref, err error) error {
	err = e.internal(op, ref, err, "Failed to update balance")
	telemetry.RecordError(span, err)
	return err
}

// internal passes domain errors through and logs and hides everything else
func (e *Engine) internal(op string, ref principal.Ref, err error, message string) error {
	if shared.IsDomainError(err) {
		return err
	}
	e.logger.Error("Credit operation failed",
		zap.String("operation", op),
		zap.String("principal", ref.String()),
		zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, message)
}
