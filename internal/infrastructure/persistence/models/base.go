package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// refPtr rebuilds an optional principal reference from nullable columns
func refPtr(kind *string, id *uuid.UUID) *principal.Ref {
	if kind == nil || id == nil {
		return nil
	}
	return &principal.Ref{Kind: principal.Kind(*kind), ID: *id}
}

// refColumns splits an optional reference into nullable columns
func refColumns(ref *principal.Ref) (*string, *uuid.UUID) {
	if ref == nil {
		return nil, nil
	}
	kind := string(ref.Kind)
	id := ref.ID
	return &kind, &id
}

// All returns every model for AutoMigrate in tests and local sqlite runs.
func All() []any {
	return []any{
		&UserModel{},
		&SessionModel{},
		&CreditTransactionModel{},
		&EventTypeModel{},
		&GamificationEventModel{},
		&BadgeModel{},
		&UserGamificationModel{},
		&CouponTypeModel{},
		&CouponModel{},
		&IntegrationModel{},
		&SettingModel{},
		&CreditPackageModel{},
		&PurchaseModel{},
	}
}
