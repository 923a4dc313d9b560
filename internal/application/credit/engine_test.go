package credit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence"
	"github.com/meterly/backend/internal/infrastructure/telemetry"
	"github.com/meterly/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	engine   *Engine
	users    *persistence.GormUserRepository
	sessions *persistence.GormSessionRepository
	settings *testutil.StaticSettings
	events   *testutil.RecordingPublisher
	metrics  *telemetry.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	f := &fixture{
		users:    persistence.NewGormUserRepository(db),
		sessions: persistence.NewGormSessionRepository(db),
		settings: testutil.NewStaticSettings(),
		events:   testutil.NewRecordingPublisher(),
		metrics:  telemetry.NewMetrics(),
	}
	f.engine = NewEngine(
		persistence.NewGormBalanceRepository(db),
		persistence.NewGormCreditTransactionRepository(db),
		f.users,
		persistence.NewGormTransactionManager(db),
		f.settings,
		f.events,
		f.metrics,
		zaptest.NewLogger(t),
	)
	return f
}

func (f *fixture) newUser(t *testing.T, tier principal.Tier, balance int64) principal.Ref {
	t.Helper()
	base := shared.NewBaseEntity()
	user := &principal.User{
		BaseEntity:     base,
		Username:       "user-" + base.ID.String()[:8],
		Email:          base.ID.String()[:8] + "@example.com",
		PasswordHash:   "unused",
		Role:           principal.RoleUser,
		Tier:           tier,
		Status:         principal.UserStatusActive,
		LastActivityAt: base.CreatedAt,
	}
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, user))
	ref := principal.RegisteredRef(user.ID)
	_, err := f.engine.Open(ctx, ref, balance, "Account opened")
	require.NoError(t, err)
	return ref
}

func (f *fixture) newSession(t *testing.T, balance int64) principal.Ref {
	t.Helper()
	session := principal.NewSession("127.0.0.1", "test")
	ctx := context.Background()
	require.NoError(t, f.sessions.Create(ctx, session))
	ref := principal.AnonymousRef(session.ID)
	_, err := f.engine.Open(ctx, ref, balance, "Session opened")
	require.NoError(t, err)
	return ref
}

func (f *fixture) assertReconciled(t *testing.T, ref principal.Ref, expected int64) {
	t.Helper()
	rec, err := f.engine.Reconcile(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, expected, rec.Balance)
	assert.True(t, rec.Balanced(), "ledger sum %d does not explain balance %d", rec.LedgerSum, rec.Balance)
}

func counterValue(t *testing.T, m *telemetry.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestEngine_ChargeThenGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.newUser(t, principal.TierFreemium, 100)

	balance, err := f.engine.Charge(ctx, ref, 5, credit.KindUsage, "generate")
	require.NoError(t, err)
	assert.Equal(t, int64(95), balance)

	balance, err = f.engine.Grant(ctx, ref, 50, credit.KindGrant, "support bonus")
	require.NoError(t, err)
	assert.Equal(t, int64(145), balance)

	f.assertReconciled(t, ref, 145)

	page, err := f.engine.ListTransactions(ctx, ref, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, credit.KindGrant, page.Items[0].Kind)
	assert.Equal(t, int64(50), page.Items[0].Amount)
	assert.Equal(t, int64(145), page.Items[0].BalanceAfter)
	assert.Equal(t, credit.KindUsage, page.Items[1].Kind)
	assert.Equal(t, int64(-5), page.Items[1].Amount)
	assert.Equal(t, credit.KindInitial, page.Items[2].Kind)

	assert.Equal(t, []string{credit.EventCreditGrant, credit.EventCreditUsage, credit.EventCreditGrant}, f.events.Types())
	assert.Equal(t, float64(5), counterValue(t, f.metrics, "meterly_credits_charged_total"))
}

func TestEngine_Charge(t *testing.T) {
	t.Run("anonymous session cannot overspend", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		ref := f.newSession(t, 10)
		f.events.Reset()

		_, err := f.engine.Charge(ctx, ref, 11, credit.KindUsage, "too much")

		assert.ErrorIs(t, err, shared.ErrInsufficientCredits)
		f.assertReconciled(t, ref, 10)
		assert.Empty(t, f.events.Events())
		assert.Equal(t, float64(1), counterValue(t, f.metrics, "meterly_insufficient_credits_total"))
	})

	t.Run("exact balance reaches zero", func(t *testing.T) {
		f := newFixture(t)
		ref := f.newSession(t, 10)

		balance, err := f.engine.Charge(context.Background(), ref, 10, "", "all of it")

		require.NoError(t, err)
		assert.Zero(t, balance)
		f.assertReconciled(t, ref, 0)
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		f := newFixture(t)
		ref := f.newSession(t, 10)

		_, err := f.engine.Charge(context.Background(), ref, 0, credit.KindUsage, "")

		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, shared.CodeInvalidInput, de.Code)
	})

	t.Run("unknown principal is not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.engine.Charge(context.Background(), principal.AnonymousRef(uuid.New()), 1, credit.KindUsage, "")

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("settings failure is internal", func(t *testing.T) {
		f := newFixture(t)
		ref := f.newSession(t, 10)
		f.settings.SetError(errors.New("db down"))

		_, err := f.engine.Charge(context.Background(), ref, 1, credit.KindUsage, "")

		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, shared.CodeInternal, de.Code)
		assert.NotContains(t, de.Message, "db down")
	})
}

func TestEngine_ConcurrentChargesNeverDoubleSpend(t *testing.T) {
	f := newFixture(t)
	ref := f.newUser(t, principal.TierFreemium, 10)

	const workers = 30
	var succeeded, rejected atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.Charge(context.Background(), ref, 1, credit.KindUsage, "concurrent")
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, shared.ErrInsufficientCredits):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, int32(workers-10), rejected.Load())
	f.assertReconciled(t, ref, 0)
}

func TestEngine_DisabledCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.newUser(t, principal.TierFreemium, 20)
	f.settings.Update(func(s *settings.Settings) { s.DisableCredits = true })
	f.events.Reset()

	balance, err := f.engine.Charge(ctx, ref, 50, credit.KindUsage, "free while disabled")
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	balance, err = f.engine.Grant(ctx, ref, 5, credit.KindGrant, "ignored while disabled")
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
	assert.Empty(t, f.events.Events())

	balance, err = f.engine.Grant(ctx, ref, 5, credit.KindPurchase, "paid for")
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	balance, err = f.engine.Grant(ctx, ref, 7, credit.KindCouponRedemption, "coupon spent")
	require.NoError(t, err)
	assert.Equal(t, int64(32), balance)

	f.assertReconciled(t, ref, 32)
}

func TestEngine_GrantRejectsDebitKinds(t *testing.T) {
	f := newFixture(t)
	ref := f.newSession(t, 1)

	for _, kind := range []credit.Kind{credit.KindUsage, credit.KindReset} {
		_, err := f.engine.Grant(context.Background(), ref, 1, kind, "")
		assert.ErrorIs(t, err, shared.ErrInvalidInput, "kind %s", kind)
	}
}

func TestEngine_Transfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := f.newSession(t, 7)
	to := f.newUser(t, principal.TierFreemium, 100)

	moved, err := f.engine.Transfer(ctx, from, to, "Merged anonymous session")

	require.NoError(t, err)
	assert.Equal(t, int64(7), moved)
	f.assertReconciled(t, from, 0)
	f.assertReconciled(t, to, 107)

	t.Run("empty source moves nothing", func(t *testing.T) {
		moved, err := f.engine.Transfer(ctx, from, to, "again")

		require.NoError(t, err)
		assert.Zero(t, moved)
		f.assertReconciled(t, to, 107)
	})
}

func TestEngine_ResetAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.SetResetBatchSize(1)

	freemium := f.newUser(t, principal.TierFreemium, 3)
	premium := f.newUser(t, principal.TierPremium, 5000)
	recent := f.newUser(t, principal.TierFreemium, 42)
	require.NoError(t, f.users.MarkReset(ctx, recent.ID, time.Now().Add(-time.Hour)))
	session := f.newSession(t, 4)

	count, err := f.engine.ResetAll(ctx, 100, 1000, 30)

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	f.assertReconciled(t, freemium, 100)
	f.assertReconciled(t, premium, 1000)
	f.assertReconciled(t, recent, 42)
	f.assertReconciled(t, session, 4)

	page, err := f.engine.ListTransactions(ctx, premium, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, credit.KindReset, page.Items[0].Kind)
	assert.Equal(t, int64(-4000), page.Items[0].Amount)
	assert.NotEmpty(t, f.events.OfType(credit.EventCreditReset))

	t.Run("second run finds nobody due", func(t *testing.T) {
		count, err := f.engine.ResetAll(ctx, 100, 1000, 30)

		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("invalid interval", func(t *testing.T) {
		_, err := f.engine.ResetAll(ctx, 100, 1000, 0)
		assert.Error(t, err)
	})
}

func TestEngine_ListTransactionsPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.newSession(t, 50)
	for i := 0; i < 4; i++ {
		_, err := f.engine.Charge(ctx, ref, 1, credit.KindUsage, "")
		require.NoError(t, err)
	}

	page, err := f.engine.ListTransactions(ctx, ref, shared.Filter{Page: 2, PageSize: 2})

	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Items, 2)
}
