package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormCreditTransactionRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewGormCreditTransactionRepository(db)

	user := principal.RegisteredRef(seedUser(t, db, "ledger", 0).ID)
	session := principal.AnonymousRef(seedSession(t, db, 0).ID)

	initial, err := credit.NewCredit(user, 100, credit.KindInitial, "opening balance", 100)
	require.NoError(t, err)
	usage, err := credit.NewDebit(user, 5, credit.KindUsage, "action", 95)
	require.NoError(t, err)
	usage.CreatedAt = initial.CreatedAt.Add(time.Second)
	grant, err := credit.NewCredit(user, 50, credit.KindCouponRedemption, "coupon", 145)
	require.NoError(t, err)
	grant.CreatedAt = initial.CreatedAt.Add(2 * time.Second)
	anon, err := credit.NewCredit(session, 10, credit.KindInitial, "opening balance", 10)
	require.NoError(t, err)

	for _, tx := range []*credit.Transaction{initial, usage, grant, anon} {
		require.NoError(t, repo.Append(ctx, tx))
	}

	t.Run("sums per principal", func(t *testing.T) {
		sum, err := repo.SumByPrincipal(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(145), sum)

		sum, err = repo.SumByPrincipal(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, int64(10), sum)
	})

	t.Run("lists newest first with paging", func(t *testing.T) {
		page, total, err := repo.ListByPrincipal(ctx, user, shared.Filter{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, page, 2)
		assert.Equal(t, credit.KindCouponRedemption, page[0].Kind)
		assert.Equal(t, int64(-5), page[1].Amount)
		assert.Equal(t, user, page[1].Principal)

		page, _, err = repo.ListByPrincipal(ctx, user, shared.Filter{Page: 2, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, credit.KindInitial, page[0].Kind)
	})

	t.Run("empty ledger sums to zero", func(t *testing.T) {
		other := principal.AnonymousRef(seedSession(t, db, 0).ID)
		sum, err := repo.SumByPrincipal(ctx, other)
		require.NoError(t, err)
		assert.Zero(t, sum)
	})
}
