package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/gamification"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProgressRepository implements gamification.ProgressRepository
type GormProgressRepository struct {
	db *gorm.DB
}

// NewGormProgressRepository creates a new GormProgressRepository
func NewGormProgressRepository(db *gorm.DB) *GormProgressRepository {
	return &GormProgressRepository{db: db}
}

// Find loads the aggregate of one principal and event type
func (r *GormProgressRepository) Find(ctx context.Context, ref principal.Ref, eventTypeID uuid.UUID) (*gamification.UserGamification, error) {
	return r.find(conn(ctx, r.db), ref, eventTypeID)
}

// FindForUpdate loads the aggregate with a row lock
func (r *GormProgressRepository) FindForUpdate(ctx context.Context, ref principal.Ref, eventTypeID uuid.UUID) (*gamification.UserGamification, error) {
	return r.find(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), ref, eventTypeID)
}

func (r *GormProgressRepository) find(db *gorm.DB, ref principal.Ref, eventTypeID uuid.UUID) (*gamification.UserGamification, error) {
	var model models.UserGamificationModel
	err := db.Where("principal_kind = ? AND principal_id = ? AND event_type_id = ?", ref.Kind, ref.ID, eventTypeID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert writes the aggregate keyed by (principal_kind, principal_id, event_type_id)
func (r *GormProgressRepository) Upsert(ctx context.Context, g *gamification.UserGamification) error {
	model := models.UserGamificationModelFromDomain(g)
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "principal_kind"}, {Name: "principal_id"}, {Name: "event_type_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"points", "badge_id", "updated_at"}),
	}).Create(model).Error
}

// ListByPrincipal returns every aggregate of a principal
func (r *GormProgressRepository) ListByPrincipal(ctx context.Context, ref principal.Ref) ([]gamification.UserGamification, error) {
	var rows []models.UserGamificationModel
	if err := conn(ctx, r.db).
		Where("principal_kind = ? AND principal_id = ?", ref.Kind, ref.ID).
		Order("points DESC, event_type_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]gamification.UserGamification, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// ListByEventType returns every aggregate of an event type
func (r *GormProgressRepository) ListByEventType(ctx context.Context, eventTypeID uuid.UUID) ([]gamification.UserGamification, error) {
	var rows []models.UserGamificationModel
	if err := conn(ctx, r.db).Where("event_type_id = ?", eventTypeID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]gamification.UserGamification, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// DeleteByEventType removes all aggregates of an event type
func (r *GormProgressRepository) DeleteByEventType(ctx context.Context, eventTypeID uuid.UUID) error {
	return conn(ctx, r.db).Where("event_type_id = ?", eventTypeID).Delete(&models.UserGamificationModel{}).Error
}

type rankingRow struct {
	PrincipalKind    string
	PrincipalID      uuid.UUID
	TotalPoints      int64
	Username         *string
	UserCreatedAt    *time.Time
	SessionCreatedAt *time.Time
}

// Rankings sums points per principal across event types. The kind comes from
// the aggregate row itself and the creation time from the owning principal.
func (r *GormProgressRepository) Rankings(ctx context.Context, limit int) ([]gamification.Ranking, error) {
	var rows []rankingRow
	err := conn(ctx, r.db).
		Table("user_gamifications AS ug").
		Select(`ug.principal_kind, ug.principal_id, SUM(ug.points) AS total_points,
			u.username AS username, u.created_at AS user_created_at, s.created_at AS session_created_at`).
		Joins("LEFT JOIN users u ON ug.principal_kind = ? AND u.id = ug.principal_id", principal.KindRegistered).
		Joins("LEFT JOIN anonymous_sessions s ON ug.principal_kind = ? AND s.id = ug.principal_id", principal.KindAnonymous).
		Group("ug.principal_kind, ug.principal_id, u.username, u.created_at, s.created_at").
		Order("total_points DESC, COALESCE(u.created_at, s.created_at) ASC, ug.principal_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]gamification.Ranking, 0, len(rows))
	for _, row := range rows {
		entry := gamification.Ranking{
			Principal:   principal.Ref{Kind: principal.Kind(row.PrincipalKind), ID: row.PrincipalID},
			TotalPoints: row.TotalPoints,
		}
		switch {
		case row.UserCreatedAt != nil:
			entry.PrincipalCreatedAt = *row.UserCreatedAt
		case row.SessionCreatedAt != nil:
			entry.PrincipalCreatedAt = *row.SessionCreatedAt
		}
		if row.Username != nil {
			entry.DisplayName = *row.Username
		} else {
			entry.DisplayName = "guest-" + row.PrincipalID.String()[:8]
		}
		out = append(out, entry)
	}
	// Drivers collate stored timestamps differently.
	gamification.SortRankings(out)
	return out, nil
}
