package metering

import (
	"context"
	"errors"
	"testing"

	creditapp "github.com/meterly/backend/internal/application/credit"
	gamapp "github.com/meterly/backend/internal/application/gamification"
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
	service  *ActionService
	credits  *creditapp.Engine
	catalog  *gamapp.CatalogService
	progress *gamapp.Engine
	sessions *persistence.GormSessionRepository
	settings *testutil.StaticSettings
	events   *testutil.RecordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	logger := zaptest.NewLogger(t)
	tm := persistence.NewGormTransactionManager(db)
	f := &fixture{
		sessions: persistence.NewGormSessionRepository(db),
		settings: testutil.NewStaticSettings(),
		events:   testutil.NewRecordingPublisher(),
	}
	f.credits = creditapp.NewEngine(
		persistence.NewGormBalanceRepository(db),
		persistence.NewGormCreditTransactionRepository(db),
		persistence.NewGormUserRepository(db),
		tm, f.settings, f.events, nil, logger)

	eventTypes := persistence.NewGormEventTypeRepository(db)
	events := persistence.NewGormGamificationEventRepository(db)
	badges := persistence.NewGormBadgeRepository(db)
	progress := persistence.NewGormProgressRepository(db)
	f.progress = gamapp.NewEngine(eventTypes, events, badges, progress, tm, f.events, nil, logger)
	f.catalog = gamapp.NewCatalogService(eventTypes, events, badges, progress, tm, f.progress, logger)

	f.service = NewActionService(f.credits, f.progress, tm, f.settings, logger)
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

func TestActionService_Perform(t *testing.T) {
	ctx := context.Background()

	t.Run("charges and records a matching event", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.catalog.CreateEventType(ctx, gamapp.EventTypeInput{Name: "summarize", PointsPerEvent: 5})
		require.NoError(t, err)
		ref := f.newSession(t, 10)

		result, err := f.service.Perform(ctx, ref, "Summarize")

		require.NoError(t, err)
		assert.Equal(t, "summarize", result.Action)
		assert.Equal(t, int64(1), result.Cost)
		assert.Equal(t, int64(9), result.Balance)
		require.NotNil(t, result.Event)
		assert.Equal(t, int64(5), result.Event.Progress.Points)
		assert.Len(t, f.events.OfType(credit.EventCreditUsage), 1)
	})

	t.Run("action without event type only charges", func(t *testing.T) {
		f := newFixture(t)
		f.settings.Update(func(s *settings.Settings) { s.ActionCost = 3 })
		ref := f.newSession(t, 10)

		result, err := f.service.Perform(ctx, ref, "translate")

		require.NoError(t, err)
		assert.Equal(t, int64(7), result.Balance)
		assert.Nil(t, result.Event)
	})

	t.Run("insufficient balance records nothing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.catalog.CreateEventType(ctx, gamapp.EventTypeInput{Name: "summarize", PointsPerEvent: 5})
		require.NoError(t, err)
		f.settings.Update(func(s *settings.Settings) { s.ActionCost = 11 })
		ref := f.newSession(t, 10)

		_, err = f.service.Perform(ctx, ref, "summarize")

		assert.ErrorIs(t, err, shared.ErrInsufficientCredits)
		_, err = f.progress.GetProgress(ctx, ref, "summarize")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		balance, err := f.credits.GetBalance(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, int64(10), balance)
	})

	t.Run("zero cost is free", func(t *testing.T) {
		f := newFixture(t)
		f.settings.Update(func(s *settings.Settings) { s.ActionCost = 0 })
		ref := f.newSession(t, 10)

		result, err := f.service.Perform(ctx, ref, "translate")

		require.NoError(t, err)
		assert.Equal(t, int64(10), result.Balance)
	})

	t.Run("invalid action name", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Perform(ctx, f.newSession(t, 1), "no spaces allowed")

		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordEvent(ctx context.Context, ref principal.Ref, name string) (*gamapp.RecordResult, error) {
	args := m.Called(ctx, ref, name)
	r, _ := args.Get(0).(*gamapp.RecordResult)
	return r, args.Error(1)
}

func TestActionService_RecorderFailureRollsBackCharge(t *testing.T) {
	f := newFixture(t)
	recorder := &mockRecorder{}
	recorder.On("RecordEvent", mock.Anything, mock.Anything, "summarize").Return(nil, errors.New("disk full"))
	f.service.recorder = recorder
	ref := f.newSession(t, 10)

	_, err := f.service.Perform(context.Background(), ref, "summarize")

	assert.ErrorIs(t, err, shared.ErrInternal)
	balance, err := f.credits.GetBalance(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
	recorder.AssertExpectations(t)
}
