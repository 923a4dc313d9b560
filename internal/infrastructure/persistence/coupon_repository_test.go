package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormCouponRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	types := NewGormCouponTypeRepository(db)
	coupons := NewGormCouponRepository(db)

	ct, err := coupon.NewCouponType("Welcome", "", 50)
	require.NoError(t, err)
	require.NoError(t, types.Create(ctx, ct))

	owner := principal.AnonymousRef(seedSession(t, db, 0).ID)
	code, err := coupon.GenerateCode()
	require.NoError(t, err)
	c, err := coupon.NewCoupon(code, ct.ID, &owner, nil)
	require.NoError(t, err)
	require.NoError(t, coupons.Create(ctx, c))

	t.Run("finds by normalized code", func(t *testing.T) {
		got, err := coupons.FindByCode(ctx, c.Code)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		require.NotNil(t, got.BoundTo)
		assert.Equal(t, owner, *got.BoundTo)

		exists, err := coupons.ExistsByCode(ctx, c.Code)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("transition is compare-and-set on status", func(t *testing.T) {
		loaded, err := coupons.FindByCodeForUpdate(ctx, c.Code)
		require.NoError(t, err)
		require.NoError(t, loaded.Redeem(owner, time.Now()))

		ok, err := coupons.Transition(ctx, loaded, coupon.StatusActive)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = coupons.Transition(ctx, loaded, coupon.StatusActive)
		require.NoError(t, err)
		assert.False(t, ok, "second transition from active must lose")

		stored, err := coupons.FindByCode(ctx, c.Code)
		require.NoError(t, err)
		assert.Equal(t, coupon.StatusRedeemed, stored.Status)
		require.NotNil(t, stored.RedeemedBy)
		assert.Equal(t, owner, *stored.RedeemedBy)
	})

	t.Run("lists by principal and filter", func(t *testing.T) {
		mine, err := coupons.ListByPrincipal(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		list, total, err := coupons.List(ctx, coupon.Filter{Status: coupon.StatusActive})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, list)

		hasCoupons, err := types.HasCoupons(ctx, ct.ID)
		require.NoError(t, err)
		assert.True(t, hasCoupons)
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		_, err := coupons.FindByCode(ctx, "ZZZZZZZZZZZZ")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
