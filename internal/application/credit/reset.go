package credit

import (
	"context"
	"fmt"

	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ResetAll restores every active registered user that is due to its tier
// default. A user is due when it was never reset or last reset intervalDays
// or more ago. Each user is reset in its own transaction, so one failure does
// not undo the others. Anonymous sessions are never reset.
func (e *Engine) ResetAll(ctx context.Context, freemiumDefault, premiumDefault int64, intervalDays int) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "reset_all", "interval_days", intervalDays)
	defer span.End()

	if intervalDays < 1 || freemiumDefault < 0 || premiumDefault < 0 {
		return 0, fmt.Errorf("credit: invalid reset parameters")
	}

	now := e.now()
	cutoff := now.AddDate(0, 0, -intervalDays)
	reset, failed := 0, 0
	skip := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return reset, err
		}
		users, err := e.users.FindDueForReset(ctx, cutoff, e.resetBatchSize+len(skip))
		if err != nil {
			telemetry.RecordError(span, err)
			return reset, e.internal("reset_all", principal.Ref{}, err, "Failed to load users due for reset")
		}

		progressed := false
		for i := range users {
			user := &users[i]
			if _, seen := skip[user.ID.String()]; seen {
				continue
			}
			target := user.TierDefault(freemiumDefault, premiumDefault)
			if err := e.resetUser(ctx, user, target); err != nil {
				failed++
				skip[user.ID.String()] = struct{}{}
				e.logger.Error("Failed to reset user balance",
					zap.String("user_id", user.ID.String()),
					zap.Error(err))
				continue
			}
			reset++
			progressed = true
		}
		if !progressed {
			break
		}
	}

	telemetry.SetAttributes(span, "reset_count", reset, "failed_count", failed)
	e.logger.Info("Credit reset finished",
		zap.Int("reset", reset),
		zap.Int("failed", failed),
		zap.Int("interval_days", intervalDays))
	return reset, nil
}

func (e *Engine) resetUser(ctx context.Context, user *principal.User, target int64) error {
	ref := principal.RegisteredRef(user.ID)
	return e.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		previous, err := e.balances.LockBalance(ctx, ref)
		if err != nil {
			return err
		}
		if err := e.balances.SetBalance(ctx, ref, target); err != nil {
			return err
		}
		row, err := credit.NewReset(ref, previous, target,
			fmt.Sprintf("Periodic reset to %s default", user.Tier))
		if err != nil {
			return err
		}
		if err := e.append(ctx, row); err != nil {
			return err
		}
		return e.users.MarkReset(ctx, user.ID, e.now())
	})
}
