package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSubmissionRepository implements deposit.SubmissionRepository using GORM
type GormSubmissionRepository struct {
	db *gorm.DB
}

// NewGormSubmissionRepository creates a new GormSubmissionRepository
func NewGormSubmissionRepository(db *gorm.DB) *GormSubmissionRepository {
	return &GormSubmissionRepository{db: db}
}

// EntityType returns "submission"
func (r *GormSubmissionRepository) EntityType() string {
	return "submission"
}

// FindByID finds a submission by its ID
func (r *GormSubmissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*deposit.Submission, error) {
	var model models.SubmissionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// Create inserts a new submission
func (r *GormSubmissionRepository) Create(ctx context.Context, s *deposit.Submission) error {
	return r.db.WithContext(ctx).Create(models.SubmissionModelFromDomain(s)).Error
}

// Update saves a submission with optimistic locking
func (r *GormSubmissionRepository) Update(ctx context.Context, s *deposit.Submission) error {
	m := models.SubmissionModelFromDomain(s)
	err := versionedUpdate(ctx, r.db, &models.SubmissionModel{}, r.EntityType(), s.ID, s.Version, map[string]any{
		"aggregated_status": m.AggregatedStatus,
		"repositories":      m.Repositories,
		"submitted":         m.Submitted,
		"submitted_at":      m.SubmittedAt,
		"updated_at":        m.UpdatedAt,
	})
	if err != nil {
		return err
	}
	s.SetVersion(s.Version + 1)
	return nil
}

// Query finds submissions matching the filter, oldest first
func (r *GormSubmissionRepository) Query(ctx context.Context, filter deposit.SubmissionFilter) ([]*deposit.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.SubmissionModel{})
	if filter.SubmittedOnly {
		query = query.Where("submitted = ?", true)
	}
	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}
	query = statusCondition(query, "aggregated_status", statuses, filter.IncludeAbsent)
	query = paginate(query.Order("created_at ASC, id ASC"), filter.Page)

	var rows []models.SubmissionModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*deposit.Submission, len(rows))
	for i := range rows {
		result[i] = rows[i].ToDomain()
	}
	return result, nil
}
