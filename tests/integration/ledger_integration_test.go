package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	couponapp "github.com/meterly/backend/internal/application/coupon"
	gamapp "github.com/meterly/backend/internal/application/gamification"
	"github.com/meterly/backend/internal/application/identity"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func registerUser(t *testing.T, ctx context.Context, auth *identity.AuthService, name string) principal.Ref {
	t.Helper()
	result, err := auth.Register(ctx, identity.RegisterInput{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
		IP:       "127.0.0.1",
	})
	require.NoError(t, err)
	return principal.RegisteredRef(result.User.ID)
}

func TestLedger_ConcurrentCharges(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	a := tdb.NewApplication()
	ctx := context.Background()
	ref := registerUser(t, ctx, a.Auth, "charger")

	opening, err := a.Credits.GetBalance(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, int64(100), opening)

	const attempts = 150
	var (
		wg           sync.WaitGroup
		succeeded    atomic.Int64
		insufficient atomic.Int64
		unexpected   = make(chan error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Credits.Charge(ctx, ref, 1, credit.KindUsage, "concurrent charge")
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, shared.ErrInsufficientCredits):
				insufficient.Add(1)
			default:
				unexpected <- err
			}
		}()
	}
	wg.Wait()
	close(unexpected)

	for err := range unexpected {
		t.Errorf("unexpected charge error: %v", err)
	}
	assert.Equal(t, opening, succeeded.Load())
	assert.Equal(t, attempts-opening, insufficient.Load())

	balance, err := a.Credits.GetBalance(ctx, ref)
	require.NoError(t, err)
	assert.Zero(t, balance)

	rec, err := a.Credits.Reconcile(ctx, ref)
	require.NoError(t, err)
	assert.True(t, rec.Balanced(), "balance %d, ledger sum %d", rec.Balance, rec.LedgerSum)
}

func TestLedger_RegisterMergesAnonymousSession(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	a := tdb.NewApplication()
	ctx := context.Background()

	p, res, err := a.Resolver.Resolve(ctx, identity.Credentials{ClientIP: "10.0.0.1", UserAgent: "integration"})
	require.NoError(t, err)
	require.True(t, res.Created)
	anon := p.Ref()
	require.Equal(t, principal.KindAnonymous, anon.Kind)

	_, err = a.Credits.Charge(ctx, anon, 3, credit.KindUsage, "before signup")
	require.NoError(t, err)

	result, err := a.Auth.Register(ctx, identity.RegisterInput{
		Username:           "merger",
		Email:              "merger@example.com",
		Password:           "password123",
		AnonymousSessionID: &anon.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.MergedCredits)
	assert.Equal(t, int64(107), result.User.Balance)

	anonBalance, err := a.Credits.GetBalance(ctx, anon)
	require.NoError(t, err)
	assert.Zero(t, anonBalance)

	for _, ref := range []principal.Ref{anon, principal.RegisteredRef(result.User.ID)} {
		rec, err := a.Credits.Reconcile(ctx, ref)
		require.NoError(t, err)
		assert.True(t, rec.Balanced(), "%s: balance %d, ledger sum %d", ref, rec.Balance, rec.LedgerSum)
	}

	t.Run("merged session no longer resolves", func(t *testing.T) {
		p, res, err := a.Resolver.Resolve(ctx, identity.Credentials{AnonymousID: anon.ID.String(), ClientIP: "10.0.0.1"})
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.NotEqual(t, anon, p.Ref())
	})
}

func TestCoupon_ConcurrentRedeem(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	a := tdb.NewApplication()
	ctx := context.Background()

	ct, err := a.CouponTypes.Create(ctx, couponapp.CouponTypeInput{Name: "Launch bonus", CreditValue: 50})
	require.NoError(t, err)
	c, err := a.Coupons.Issue(ctx, couponapp.IssueInput{CouponTypeID: ct.ID})
	require.NoError(t, err)

	const redeemers = 8
	refs := make([]principal.Ref, redeemers)
	for i := range refs {
		refs[i] = registerUser(t, ctx, a.Auth, fmt.Sprintf("redeemer%d", i))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []principal.Ref
		losers  int
	)
	for _, ref := range refs {
		wg.Add(1)
		go func(ref principal.Ref) {
			defer wg.Done()
			_, err := a.Coupons.Redeem(ctx, c.Code, ref)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, ref)
				return
			}
			assert.True(t, shared.IsDomainError(err), "unexpected error: %v", err)
			losers++
		}(ref)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, redeemers-1, losers)

	balance, err := a.Credits.GetBalance(ctx, winners[0])
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)

	for _, ref := range refs {
		rec, err := a.Credits.Reconcile(ctx, ref)
		require.NoError(t, err)
		assert.True(t, rec.Balanced())
	}
}

func TestGamification_ConcurrentEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	a := tdb.NewApplication()
	ctx := context.Background()

	et, err := a.Catalog.CreateEventType(ctx, gamapp.EventTypeInput{Name: "export", PointsPerEvent: 5})
	require.NoError(t, err)
	badge, err := a.Catalog.CreateBadge(ctx, gamapp.BadgeInput{
		Name:           "Exporter",
		EventTypeID:    et.ID,
		RequiredPoints: 50,
		Eligibility:    gamification.EligibilityBoth,
	})
	require.NoError(t, err)

	ref := registerUser(t, ctx, a.Auth, "exporter")

	const events = 20
	var wg sync.WaitGroup
	errs := make(chan error, events)
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Gamification.RecordEvent(ctx, ref, "Export"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("record event: %v", err)
	}

	progress, err := a.Gamification.GetProgress(ctx, ref, "export")
	require.NoError(t, err)
	assert.Equal(t, int64(events*5), progress.Points)
	require.NotNil(t, progress.BadgeID)
	assert.Equal(t, badge.ID, *progress.BadgeID)

	rankings, err := a.Gamification.GetRankings(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, rankings)
	var found bool
	for _, r := range rankings {
		if r.Principal == ref {
			found = true
			assert.Equal(t, int64(events*5), r.TotalPoints)
		}
	}
	assert.True(t, found)
}

func TestMigrations_DownAndUp(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewTestDB(t)
	m, err := migration.NewEmbedded(tdb.SqlDB, zap.NewNop())
	require.NoError(t, err)

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(6), version)
	assert.False(t, dirty)

	require.NoError(t, m.Down())
	var tables int64
	require.NoError(t, tdb.DB.Raw(`
		SELECT count(*) FROM pg_tables
		WHERE schemaname = 'public' AND tablename != 'schema_migrations'
	`).Scan(&tables).Error)
	assert.Zero(t, tables)

	require.NoError(t, m.Up())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(6), version)
}
