package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/shared"
	"gorm.io/gorm"
)

// versionedUpdate writes values to the row identified by id only if its
// version still equals expected, bumping the version in the same statement.
// A write that matches no row is reported as shared.ErrNotFound when the row
// is gone and as a *shared.ConflictError otherwise.
func versionedUpdate(ctx context.Context, db *gorm.DB, model any, entityType string, id uuid.UUID, expected int, values map[string]any) error {
	values["version"] = expected + 1

	result := db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", id, expected).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.NewConflictError(entityType, id, expected)
}

// translateNotFound maps gorm.ErrRecordNotFound to shared.ErrNotFound
func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

// paginate applies a page to the query; a zero limit means unbounded
func paginate(query *gorm.DB, page shared.Page) *gorm.DB {
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}
	if page.Offset > 0 {
		query = query.Offset(page.Offset)
	}
	return query
}

// statusCondition builds "column IN (...)" optionally widened to rows whose
// status is absent. It returns an empty clause when statuses is empty.
func statusCondition(query *gorm.DB, column string, statuses []string, includeAbsent bool) *gorm.DB {
	if len(statuses) == 0 {
		return query
	}
	if includeAbsent {
		return query.Where("("+column+" IN ? OR "+column+" IS NULL OR "+column+" = '')", statuses)
	}
	return query.Where(column+" IN ?", statuses)
}
