package persistence

import (
	"context"
	"testing"

	"github.com/meterly/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSettingsRepository(testutil.NewSQLiteDB(t))

	require.NoError(t, repo.SeedMissing(ctx, map[string]string{"action_cost": "1", "enable_coupons": "true"}))
	require.NoError(t, repo.Upsert(ctx, map[string]string{"action_cost": "3"}))
	require.NoError(t, repo.SeedMissing(ctx, map[string]string{"action_cost": "1", "disable_credits": "false"}))

	all, err := repo.All(ctx)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"action_cost":     "3",
		"enable_coupons":  "true",
		"disable_credits": "false",
	}, all)
}
