package persistence

import (
	"context"

	"github.com/meterly/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// saveExisting overwrites every column of an existing row keyed by the
// model's primary key. Unlike Save it never inserts.
func saveExisting(ctx context.Context, db *gorm.DB, model any) error {
	result := conn(ctx, db).Model(model).Select("*").Omit("created_at").Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// deleteByID removes one row, reporting ErrNotFound when nothing matched
func deleteByID(ctx context.Context, db *gorm.DB, model any, id any) error {
	result := conn(ctx, db).Delete(model, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
