package persistence

import (
	"context"

	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCreditTransactionRepository implements credit.TransactionRepository
type GormCreditTransactionRepository struct {
	db *gorm.DB
}

// NewGormCreditTransactionRepository creates a new GormCreditTransactionRepository
func NewGormCreditTransactionRepository(db *gorm.DB) *GormCreditTransactionRepository {
	return &GormCreditTransactionRepository{db: db}
}

// Append inserts a ledger row. Rows are never updated.
func (r *GormCreditTransactionRepository) Append(ctx context.Context, tx *credit.Transaction) error {
	return conn(ctx, r.db).Create(models.CreditTransactionModelFromDomain(tx)).Error
}

func principalScope(ref principal.Ref) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if ref.Kind == principal.KindRegistered {
			return db.Where("user_id = ?", ref.ID)
		}
		return db.Where("session_id = ?", ref.ID)
	}
}

// ListByPrincipal returns a page of the principal's ledger, newest first
func (r *GormCreditTransactionRepository) ListByPrincipal(ctx context.Context, ref principal.Ref, filter shared.Filter) ([]credit.Transaction, int64, error) {
	filter = filter.Normalize()
	query := conn(ctx, r.db).Model(&models.CreditTransactionModel{}).Scopes(principalScope(ref))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.CreditTransactionModel
	if err := query.Order("created_at DESC, id DESC").
		Offset(filter.Offset()).Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	txs := make([]credit.Transaction, len(rows))
	for i := range rows {
		txs[i] = *rows[i].ToDomain()
	}
	return txs, total, nil
}

// SumByPrincipal adds up every ledger amount of the principal
func (r *GormCreditTransactionRepository) SumByPrincipal(ctx context.Context, ref principal.Ref) (int64, error) {
	var sum int64
	err := conn(ctx, r.db).Model(&models.CreditTransactionModel{}).
		Scopes(principalScope(ref)).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
