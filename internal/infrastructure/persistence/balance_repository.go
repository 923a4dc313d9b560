package persistence

import (
	"context"
	"errors"

	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBalanceRepository implements credit.BalanceRepository on the balance
// column of users and anonymous_sessions.
type GormBalanceRepository struct {
	db *gorm.DB
}

// NewGormBalanceRepository creates a new GormBalanceRepository
func NewGormBalanceRepository(db *gorm.DB) *GormBalanceRepository {
	return &GormBalanceRepository{db: db}
}

func balanceModel(ref principal.Ref) (any, error) {
	switch ref.Kind {
	case principal.KindRegistered:
		return &models.UserModel{}, nil
	case principal.KindAnonymous:
		return &models.SessionModel{}, nil
	}
	return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unknown principal kind")
}

// GetBalance reads the current balance without locking
func (r *GormBalanceRepository) GetBalance(ctx context.Context, ref principal.Ref) (int64, error) {
	return r.readBalance(conn(ctx, r.db), ref)
}

// LockBalance reads the balance with SELECT ... FOR UPDATE
func (r *GormBalanceRepository) LockBalance(ctx context.Context, ref principal.Ref) (int64, error) {
	return r.readBalance(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), ref)
}

func (r *GormBalanceRepository) readBalance(db *gorm.DB, ref principal.Ref) (int64, error) {
	model, err := balanceModel(ref)
	if err != nil {
		return 0, err
	}
	var row struct{ Balance int64 }
	if err := db.Model(model).Select("balance").Where("id = ?", ref.ID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return row.Balance, nil
}

// Debit subtracts amount with a conditional update so the balance can never
// go negative, even without a prior lock.
func (r *GormBalanceRepository) Debit(ctx context.Context, ref principal.Ref, amount int64) (int64, bool, error) {
	model, err := balanceModel(ref)
	if err != nil {
		return 0, false, err
	}
	db := conn(ctx, r.db)
	result := db.Model(model).
		Where("id = ? AND balance >= ?", ref.ID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return 0, false, result.Error
	}
	if result.RowsAffected == 0 {
		balance, err := r.readBalance(db, ref)
		return balance, false, err
	}
	balance, err := r.readBalance(db, ref)
	return balance, err == nil, err
}

// Credit adds amount and returns the new balance
func (r *GormBalanceRepository) Credit(ctx context.Context, ref principal.Ref, amount int64) (int64, error) {
	model, err := balanceModel(ref)
	if err != nil {
		return 0, err
	}
	db := conn(ctx, r.db)
	result := db.Model(model).
		Where("id = ?", ref.ID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, shared.ErrNotFound
	}
	return r.readBalance(db, ref)
}

// SetBalance overwrites the balance
func (r *GormBalanceRepository) SetBalance(ctx context.Context, ref principal.Ref, balance int64) error {
	model, err := balanceModel(ref)
	if err != nil {
		return err
	}
	result := conn(ctx, r.db).Model(model).Where("id = ?", ref.ID).Update("balance", balance)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
