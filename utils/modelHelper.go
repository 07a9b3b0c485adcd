package utils

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// fetch one model by id
// (companyId is applied in the WHERE on top of the tenant guard)
func FetchModel[T any](db *gorm.DB, ctx context.Context, companyId string, id interface{}, associations ...string) (*T, error) {
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// fetch all models from db
// (companyId is applied in the WHERE on top of the tenant guard)
func FetchAllModels[T any](db *gorm.DB, ctx context.Context, companyId string, associations ...string) ([]*T, error) {
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ResourceCountWhere[T any](db *gorm.DB, ctx context.Context, companyId string, cond string, values ...interface{}) (int64, error) {
	var model T
	var count int64
	err := db.WithContext(ctx).Model(&model).
		Where("company_id = ?", companyId).
		Where(cond, values...).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
