package coupon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	creditapp "github.com/meterly/backend/internal/application/credit"
	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence"
	"github.com/meterly/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	engine   *Engine
	types    *TypeService
	credits  *creditapp.Engine
	coupons  *persistence.GormCouponRepository
	sessions *persistence.GormSessionRepository
	settings *testutil.StaticSettings
	events   *testutil.RecordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	logger := zaptest.NewLogger(t)
	tm := persistence.NewGormTransactionManager(db)
	couponTypes := persistence.NewGormCouponTypeRepository(db)

	f := &fixture{
		coupons:  persistence.NewGormCouponRepository(db),
		sessions: persistence.NewGormSessionRepository(db),
		settings: testutil.NewStaticSettings(),
		events:   testutil.NewRecordingPublisher(),
	}
	f.credits = creditapp.NewEngine(
		persistence.NewGormBalanceRepository(db),
		persistence.NewGormCreditTransactionRepository(db),
		persistence.NewGormUserRepository(db),
		tm, f.settings, nil, nil, logger,
	)
	f.engine = NewEngine(couponTypes, f.coupons, f.credits, tm, f.settings, f.events, nil, logger)
	f.types = NewTypeService(couponTypes, logger)
	return f
}

func (f *fixture) newSession(t *testing.T, balance int64) principal.Ref {
	t.Helper()
	session := principal.NewSession("127.0.0.1", "test")
	ctx := context.Background()
	require.NoError(t, f.sessions.Create(ctx, session))
	ref := principal.AnonymousRef(session.ID)
	_, err := f.credits.Open(ctx, ref, balance, "Session opened")
	require.NoError(t, err)
	return ref
}

func (f *fixture) couponType(t *testing.T, value int64) *coupon.CouponType {
	t.Helper()
	ct, err := f.types.Create(context.Background(), CouponTypeInput{Name: "Promo", CreditValue: value})
	require.NoError(t, err)
	return ct
}

func (f *fixture) issue(t *testing.T, input IssueInput) *coupon.Coupon {
	t.Helper()
	c, err := f.engine.Issue(context.Background(), input)
	require.NoError(t, err)
	return c
}

func TestEngine_Issue(t *testing.T) {
	ctx := context.Background()

	t.Run("generates a well-formed active code", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)

		c := f.issue(t, IssueInput{CouponTypeID: ct.ID})

		assert.True(t, coupon.IsWellFormedCode(c.Code))
		assert.Equal(t, coupon.StatusActive, c.Status)
		stored, err := f.coupons.FindByCode(ctx, c.Code)
		require.NoError(t, err)
		assert.Equal(t, c.ID, stored.ID)
	})

	t.Run("retries on collision", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)
		taken := f.issue(t, IssueInput{CouponTypeID: ct.ID})
		codes := []string{taken.Code, taken.Code, "ABCDEFGHJKMN"}
		f.engine.generate = func() (string, error) {
			code := codes[0]
			codes = codes[1:]
			return code, nil
		}

		c := f.issue(t, IssueInput{CouponTypeID: ct.ID})

		assert.Equal(t, "ABCDEFGHJKMN", c.Code)
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)
		taken := f.issue(t, IssueInput{CouponTypeID: ct.ID})
		f.engine.generate = func() (string, error) { return taken.Code, nil }

		_, err := f.engine.Issue(ctx, IssueInput{CouponTypeID: ct.ID})

		assert.ErrorIs(t, err, shared.ErrInternal)
	})

	t.Run("inactive type", func(t *testing.T) {
		f := newFixture(t)
		inactive := false
		ct, err := f.types.Create(ctx, CouponTypeInput{Name: "Old", CreditValue: 5, Active: &inactive})
		require.NoError(t, err)

		_, err = f.engine.Issue(ctx, IssueInput{CouponTypeID: ct.ID})

		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("unknown type", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.engine.Issue(ctx, IssueInput{CouponTypeID: uuid.New()})

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("coupons disabled", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)
		f.settings.Update(func(s *settings.Settings) { s.EnableCoupons = false })

		_, err := f.engine.Issue(ctx, IssueInput{CouponTypeID: ct.ID})

		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestEngine_IssueDemo(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.engine.IssueDemo(ctx, f.newSession(t, 10))

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("bound to caller with fixed expiry", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 50)
		f.settings.Update(func(s *settings.Settings) { s.DemoCouponTypeID = &ct.ID })
		now := time.Now()
		f.engine.now = func() time.Time { return now }
		ref := f.newSession(t, 10)

		c, err := f.engine.IssueDemo(ctx, ref)

		require.NoError(t, err)
		require.NotNil(t, c.BoundTo)
		assert.Equal(t, ref, *c.BoundTo)
		require.NotNil(t, c.ExpiresAt)
		assert.WithinDuration(t, now.Add(DemoCouponTTL), *c.ExpiresAt, time.Second)

		mine, err := f.engine.ListMine(ctx, ref)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, c.Code, mine[0].Code)
	})
}

func TestEngine_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("grants credits and publishes", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)
		c := f.issue(t, IssueInput{CouponTypeID: ct.ID})
		ref := f.newSession(t, 10)

		result, err := f.engine.Redeem(ctx, " "+c.Code[:4]+"-"+c.Code[4:]+" ", ref)

		require.NoError(t, err)
		assert.Equal(t, coupon.StatusRedeemed, result.Coupon.Status)
		assert.Equal(t, int64(25), result.CreditValue)
		assert.Equal(t, int64(35), result.Balance)
		require.NotNil(t, result.Coupon.RedeemedBy)
		assert.Equal(t, ref, *result.Coupon.RedeemedBy)
		assert.Len(t, f.events.OfType(coupon.EventCouponRedeemed), 1)

		page, err := f.credits.ListTransactions(ctx, ref, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, credit.KindCouponRedemption, page.Items[0].Kind)
	})

	t.Run("second redemption is rejected", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)
		c := f.issue(t, IssueInput{CouponTypeID: ct.ID})
		ref := f.newSession(t, 10)
		_, err := f.engine.Redeem(ctx, c.Code, ref)
		require.NoError(t, err)

		_, err = f.engine.Redeem(ctx, c.Code, ref)

		assert.ErrorIs(t, err, shared.ErrInvalidState)
		balance, err := f.credits.GetBalance(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, int64(35), balance)
	})

	t.Run("expired coupon is persisted as expired", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)
		expiresAt := time.Now().Add(time.Minute)
		c := f.issue(t, IssueInput{CouponTypeID: ct.ID, ExpiresAt: &expiresAt})
		ref := f.newSession(t, 10)
		f.engine.now = func() time.Time { return expiresAt.Add(time.Second) }

		_, err := f.engine.Redeem(ctx, c.Code, ref)

		assert.ErrorIs(t, err, shared.ErrCouponExpired)
		stored, err := f.coupons.FindByCode(ctx, c.Code)
		require.NoError(t, err)
		assert.Equal(t, coupon.StatusExpired, stored.Status)
		balance, err := f.credits.GetBalance(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, int64(10), balance)

		_, err = f.engine.Redeem(ctx, c.Code, ref)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("bound to another principal", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)
		owner := f.newSession(t, 10)
		c := f.issue(t, IssueInput{CouponTypeID: ct.ID, BoundTo: &owner})

		_, err := f.engine.Redeem(ctx, c.Code, f.newSession(t, 10))

		assert.ErrorIs(t, err, shared.ErrCouponNotOwned)
		stored, err := f.coupons.FindByCode(ctx, c.Code)
		require.NoError(t, err)
		assert.Equal(t, coupon.StatusActive, stored.Status)
	})

	t.Run("unknown and malformed codes", func(t *testing.T) {
		f := newFixture(t)
		ref := f.newSession(t, 10)

		_, err := f.engine.Redeem(ctx, "ABCDEFGHJKMN", ref)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		_, err = f.engine.Redeem(ctx, "not a code!", ref)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("credits disabled still grants the coupon value", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 50)
		c := f.issue(t, IssueInput{CouponTypeID: ct.ID})
		ref := f.newSession(t, 10)
		f.settings.Update(func(s *settings.Settings) { s.DisableCredits = true })

		result, err := f.engine.Redeem(ctx, c.Code, ref)

		require.NoError(t, err)
		assert.Equal(t, int64(60), result.Balance)
		page, err := f.credits.ListTransactions(ctx, ref, shared.DefaultFilter())
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, credit.KindCouponRedemption, page.Items[0].Kind)
		assert.Equal(t, int64(50), page.Items[0].Amount)

		rec, err := f.credits.Reconcile(ctx, ref)
		require.NoError(t, err)
		assert.True(t, rec.Balanced())
	})

	t.Run("coupons disabled", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 25)
		c := f.issue(t, IssueInput{CouponTypeID: ct.ID})
		f.settings.Update(func(s *settings.Settings) { s.EnableCoupons = false })

		_, err := f.engine.Redeem(ctx, c.Code, f.newSession(t, 10))

		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestEngine_ChargesThenRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.newSession(t, 100)
	c := f.issue(t, IssueInput{CouponTypeID: f.couponType(t, 50).ID})

	for i := 0; i < 5; i++ {
		_, err := f.credits.Charge(ctx, ref, 1, credit.KindUsage, "API call")
		require.NoError(t, err)
	}
	balance, err := f.credits.GetBalance(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, int64(95), balance)

	result, err := f.engine.Redeem(ctx, c.Code, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(145), result.Balance)

	page, err := f.credits.ListTransactions(ctx, ref, shared.DefaultFilter())
	require.NoError(t, err)
	kinds := map[credit.Kind]int{}
	for _, tx := range page.Items {
		kinds[tx.Kind]++
	}
	assert.Equal(t, 5, kinds[credit.KindUsage])
	assert.Equal(t, 1, kinds[credit.KindCouponRedemption])
	assert.Equal(t, 1, kinds[credit.KindInitial])

	stored, err := f.coupons.FindByCode(ctx, c.Code)
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusRedeemed, stored.Status)

	rec, err := f.credits.Reconcile(ctx, ref)
	require.NoError(t, err)
	assert.True(t, rec.Balanced())
	assert.Equal(t, int64(145), rec.LedgerSum)
}

func TestEngine_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ct := f.couponType(t, 25)
	c := f.issue(t, IssueInput{CouponTypeID: ct.ID})
	ctx := context.Background()

	const workers = 10
	refs := make([]principal.Ref, workers)
	for i := range refs {
		refs[i] = f.newSession(t, 0)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, ref := range refs {
		wg.Add(1)
		go func(ref principal.Ref) {
			defer wg.Done()
			_, err := f.engine.Redeem(ctx, c.Code, ref)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, shared.ErrInvalidState)
		}(ref)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	var total int64
	for _, ref := range refs {
		balance, err := f.credits.GetBalance(ctx, ref)
		require.NoError(t, err)
		total += balance
	}
	assert.Equal(t, int64(25), total)
}

type mockGranter struct {
	mock.Mock
}

func (m *mockGranter) Grant(ctx context.Context, ref principal.Ref, amount int64, kind credit.Kind, description string) (int64, error) {
	args := m.Called(ctx, ref, amount, kind, description)
	return args.Get(0).(int64), args.Error(1)
}

func TestEngine_Redeem_GrantFailureRollsBack(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	logger := zaptest.NewLogger(t)
	couponTypes := persistence.NewGormCouponTypeRepository(db)
	coupons := persistence.NewGormCouponRepository(db)
	granter := new(mockGranter)
	engine := NewEngine(couponTypes, coupons, granter, persistence.NewGormTransactionManager(db),
		testutil.NewStaticSettings(), nil, nil, logger)
	ctx := context.Background()

	ct, err := NewTypeService(couponTypes, logger).Create(ctx, CouponTypeInput{Name: "Promo", CreditValue: 40})
	require.NoError(t, err)
	c, err := engine.Issue(ctx, IssueInput{CouponTypeID: ct.ID})
	require.NoError(t, err)
	ref := principal.AnonymousRef(uuid.New())
	granter.On("Grant", mock.Anything, ref, int64(40), credit.KindCouponRedemption, "Coupon "+c.Code).
		Return(int64(0), errors.New("ledger unavailable"))

	_, err = engine.Redeem(ctx, c.Code, ref)

	assert.ErrorIs(t, err, shared.ErrInternal)
	stored, err := coupons.FindByCode(ctx, c.Code)
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusActive, stored.Status)
	granter.AssertExpectations(t)
}

func TestTypeService(t *testing.T) {
	ctx := context.Background()

	t.Run("delete blocked once coupons exist", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 10)
		f.issue(t, IssueInput{CouponTypeID: ct.ID})

		err := f.types.Delete(ctx, ct.ID)

		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("delete unused", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 10)

		require.NoError(t, f.types.Delete(ctx, ct.ID))

		_, err := f.types.Get(ctx, ct.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("update validates value", func(t *testing.T) {
		f := newFixture(t)
		ct := f.couponType(t, 10)

		_, err := f.types.Update(ctx, ct.ID, CouponTypeInput{Name: "Promo", CreditValue: 0})

		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
