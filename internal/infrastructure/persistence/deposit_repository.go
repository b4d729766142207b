package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormDepositRepository implements deposit.DepositRepository using GORM
type GormDepositRepository struct {
	db *gorm.DB
}

// NewGormDepositRepository creates a new GormDepositRepository
func NewGormDepositRepository(db *gorm.DB) *GormDepositRepository {
	return &GormDepositRepository{db: db}
}

// EntityType returns "deposit"
func (r *GormDepositRepository) EntityType() string {
	return "deposit"
}

// FindByID finds a deposit by its ID
func (r *GormDepositRepository) FindByID(ctx context.Context, id uuid.UUID) (*deposit.Deposit, error) {
	var model models.DepositModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// Create inserts a new deposit
func (r *GormDepositRepository) Create(ctx context.Context, d *deposit.Deposit) error {
	return r.db.WithContext(ctx).Create(models.DepositModelFromDomain(d)).Error
}

// Update saves a deposit with optimistic locking
func (r *GormDepositRepository) Update(ctx context.Context, d *deposit.Deposit) error {
	err := versionedUpdate(ctx, r.db, &models.DepositModel{}, r.EntityType(), d.ID, d.Version, map[string]any{
		"status":        d.Status,
		"status_ref":    d.StatusRef,
		"last_error":    d.LastError,
		"attempt_count": d.AttemptCount,
		"updated_at":    d.UpdatedAt,
	})
	if err != nil {
		return err
	}
	d.SetVersion(d.Version + 1)
	return nil
}

// Query finds deposits matching the filter, oldest first
func (r *GormDepositRepository) Query(ctx context.Context, filter deposit.DepositFilter) ([]*deposit.Deposit, error) {
	query := r.db.WithContext(ctx).Model(&models.DepositModel{})
	if filter.SubmissionID != uuid.Nil {
		query = query.Where("submission_id = ?", filter.SubmissionID)
	}
	if filter.WithStatusRef {
		query = query.Where("status_ref <> ''")
	}
	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}
	query = statusCondition(query, "status", statuses, filter.IncludeAbsent)
	query = paginate(query.Order("created_at ASC, id ASC"), filter.Page)

	var rows []models.DepositModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*deposit.Deposit, len(rows))
	for i := range rows {
		result[i] = rows[i].ToDomain()
	}
	return result, nil
}
