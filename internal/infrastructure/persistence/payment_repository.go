package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/payment"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCreditPackageRepository implements payment.PackageRepository
type GormCreditPackageRepository struct {
	db *gorm.DB
}

// NewGormCreditPackageRepository creates a new GormCreditPackageRepository
func NewGormCreditPackageRepository(db *gorm.DB) *GormCreditPackageRepository {
	return &GormCreditPackageRepository{db: db}
}

// FindByID finds a package by ID
func (r *GormCreditPackageRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.CreditPackage, error) {
	var model models.CreditPackageModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns packages ordered by credits, optionally only active ones
func (r *GormCreditPackageRepository) List(ctx context.Context, activeOnly bool) ([]payment.CreditPackage, error) {
	query := conn(ctx, r.db)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []models.CreditPackageModel
	if err := query.Order("credits ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]payment.CreditPackage, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts a package
func (r *GormCreditPackageRepository) Create(ctx context.Context, p *payment.CreditPackage) error {
	return conn(ctx, r.db).Create(models.CreditPackageModelFromDomain(p)).Error
}

// Update saves a package
func (r *GormCreditPackageRepository) Update(ctx context.Context, p *payment.CreditPackage) error {
	return saveExisting(ctx, r.db, models.CreditPackageModelFromDomain(p))
}

// GormPurchaseRepository implements payment.PurchaseRepository
type GormPurchaseRepository struct {
	db *gorm.DB
}

// NewGormPurchaseRepository creates a new GormPurchaseRepository
func NewGormPurchaseRepository(db *gorm.DB) *GormPurchaseRepository {
	return &GormPurchaseRepository{db: db}
}

// Create inserts a purchase
func (r *GormPurchaseRepository) Create(ctx context.Context, p *payment.Purchase) error {
	return conn(ctx, r.db).Create(models.PurchaseModelFromDomain(p)).Error
}

// Update saves a purchase
func (r *GormPurchaseRepository) Update(ctx context.Context, p *payment.Purchase) error {
	return saveExisting(ctx, r.db, models.PurchaseModelFromDomain(p))
}

// FindByProviderRefForUpdate locks the purchase linked to a gateway payment
func (r *GormPurchaseRepository) FindByProviderRefForUpdate(ctx context.Context, ref string) (*payment.Purchase, error) {
	var model models.PurchaseModel
	if err := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_ref = ?", ref).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByUser returns a user's purchases, newest first
func (r *GormPurchaseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]payment.Purchase, error) {
	var rows []models.PurchaseModel
	if err := conn(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]payment.Purchase, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}
