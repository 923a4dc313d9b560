package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCouponTypeRepository implements coupon.CouponTypeRepository
type GormCouponTypeRepository struct {
	db *gorm.DB
}

// NewGormCouponTypeRepository creates a new GormCouponTypeRepository
func NewGormCouponTypeRepository(db *gorm.DB) *GormCouponTypeRepository {
	return &GormCouponTypeRepository{db: db}
}

// FindByID finds a coupon type by ID
func (r *GormCouponTypeRepository) FindByID(ctx context.Context, id uuid.UUID) (*coupon.CouponType, error) {
	var model models.CouponTypeModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns all coupon types ordered by name
func (r *GormCouponTypeRepository) List(ctx context.Context) ([]coupon.CouponType, error) {
	var rows []models.CouponTypeModel
	if err := conn(ctx, r.db).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]coupon.CouponType, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts a coupon type
func (r *GormCouponTypeRepository) Create(ctx context.Context, ct *coupon.CouponType) error {
	return conn(ctx, r.db).Create(models.CouponTypeModelFromDomain(ct)).Error
}

// Update saves a coupon type
func (r *GormCouponTypeRepository) Update(ctx context.Context, ct *coupon.CouponType) error {
	return saveExisting(ctx, r.db, models.CouponTypeModelFromDomain(ct))
}

// Delete removes a coupon type
func (r *GormCouponTypeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.db, &models.CouponTypeModel{}, id)
}

// HasCoupons reports whether any coupon was issued from the type
func (r *GormCouponTypeRepository) HasCoupons(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.CouponModel{}).Where("coupon_type_id = ?", id).Count(&count).Error
	return count > 0, err
}

// GormCouponRepository implements coupon.CouponRepository
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository creates a new GormCouponRepository
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// FindByCode finds a coupon by its normalized code
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findByCode(conn(ctx, r.db), code)
}

// FindByCodeForUpdate finds a coupon and locks its row
func (r *GormCouponRepository) FindByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findByCode(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), code)
}

func (r *GormCouponRepository) findByCode(db *gorm.DB, code string) (*coupon.Coupon, error) {
	var model models.CouponModel
	if err := db.Where("code = ?", coupon.NormalizeCode(code)).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByCode checks for a code collision
func (r *GormCouponRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.CouponModel{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// Create inserts a coupon
func (r *GormCouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	return conn(ctx, r.db).Create(models.CouponModelFromDomain(c)).Error
}

// Transition writes the new status only if the row still has status from
func (r *GormCouponRepository) Transition(ctx context.Context, c *coupon.Coupon, from coupon.Status) (bool, error) {
	model := models.CouponModelFromDomain(c)
	result := conn(ctx, r.db).Model(&models.CouponModel{}).
		Where("id = ? AND status = ?", c.ID, from).
		Updates(map[string]any{
			"status":           model.Status,
			"redeemed_at":      model.RedeemedAt,
			"redeemed_by_kind": model.RedeemedByKind,
			"redeemed_by_id":   model.RedeemedByID,
			"updated_at":       model.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// List returns a filtered page of coupons, newest first
func (r *GormCouponRepository) List(ctx context.Context, filter coupon.Filter) ([]coupon.Coupon, int64, error) {
	page := filter.Filter.Normalize()
	query := conn(ctx, r.db).Model(&models.CouponModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CouponTypeID != nil {
		query = query.Where("coupon_type_id = ?", *filter.CouponTypeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.CouponModel
	if err := query.Order(orderClause(page, CouponSortFields, "created_at", "DESC")).
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return couponsFromModels(rows), total, nil
}

// ListByPrincipal returns coupons bound to or redeemed by the principal
func (r *GormCouponRepository) ListByPrincipal(ctx context.Context, ref principal.Ref) ([]coupon.Coupon, error) {
	var rows []models.CouponModel
	if err := conn(ctx, r.db).
		Where("(bound_kind = ? AND bound_id = ?) OR (redeemed_by_kind = ? AND redeemed_by_id = ?)",
			ref.Kind, ref.ID, ref.Kind, ref.ID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return couponsFromModels(rows), nil
}

func couponsFromModels(rows []models.CouponModel) []coupon.Coupon {
	out := make([]coupon.Coupon, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}
