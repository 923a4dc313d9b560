package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"github.com/meterly/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedEventType(t *testing.T, db *gorm.DB, name string, points int64) *gamification.EventType {
	t.Helper()
	et, err := gamification.NewEventType(name, "", points)
	require.NoError(t, err)
	require.NoError(t, NewGormEventTypeRepository(db).Create(context.Background(), et))
	return et
}

func TestGormProgressRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewGormProgressRepository(db)
	et := seedEventType(t, db, "login", 10)
	ref := principal.RegisteredRef(seedUser(t, db, "gamer", 0).ID)

	_, err := repo.Find(ctx, ref, et.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	g := gamification.NewUserGamification(ref, et.ID)
	g.Points = 10
	require.NoError(t, repo.Upsert(ctx, g))

	again := gamification.NewUserGamification(ref, et.ID)
	again.Points = 30
	require.NoError(t, repo.Upsert(ctx, again))

	got, err := repo.FindForUpdate(ctx, ref, et.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.Points)
	assert.Equal(t, g.ID, got.ID, "conflicting insert keeps the original row")

	list, err := repo.ListByPrincipal(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGormProgressRepository_Rankings(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewGormProgressRepository(db)
	login := seedEventType(t, db, "login", 10)
	share := seedEventType(t, db, "share", 5)

	early := seedUser(t, db, "early", 0)
	late := seedUser(t, db, "late", 0)
	require.NoError(t, db.Model(&models.UserModel{}).Where("id = ?", late.ID).
		Update("created_at", early.CreatedAt.Add(time.Hour)).Error)
	guest := seedSession(t, db, 0)

	put := func(ref principal.Ref, et *gamification.EventType, points int64) {
		g := gamification.NewUserGamification(ref, et.ID)
		g.Points = points
		require.NoError(t, repo.Upsert(ctx, g))
	}
	put(principal.RegisteredRef(late.ID), login, 20)
	put(principal.RegisteredRef(early.ID), login, 10)
	put(principal.RegisteredRef(early.ID), share, 10)
	put(principal.AnonymousRef(guest.ID), login, 50)

	rankings, err := repo.Rankings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rankings, 3)

	assert.Equal(t, principal.AnonymousRef(guest.ID), rankings[0].Principal)
	assert.Equal(t, int64(50), rankings[0].TotalPoints)
	assert.Contains(t, rankings[0].DisplayName, "guest-")

	assert.Equal(t, "early", rankings[1].DisplayName, "ties go to the earliest created principal")
	assert.Equal(t, int64(20), rankings[1].TotalPoints)
	assert.Equal(t, principal.KindRegistered, rankings[1].Principal.Kind)
	assert.Equal(t, "late", rankings[2].DisplayName)

	top, err := repo.Rankings(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestGormGamificationEventRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	events := NewGormGamificationEventRepository(db)
	et := seedEventType(t, db, "upload", 1)
	ref := principal.AnonymousRef(seedSession(t, db, 0).ID)

	used, err := events.ExistsForEventType(ctx, et.ID)
	require.NoError(t, err)
	assert.False(t, used)

	for i := 0; i < 3; i++ {
		require.NoError(t, events.Create(ctx, gamification.NewEvent(et.ID, ref)))
	}

	count, err := events.Count(ctx, ref, et.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	used, err = events.ExistsForEventType(ctx, et.ID)
	require.NoError(t, err)
	assert.True(t, used)
}
