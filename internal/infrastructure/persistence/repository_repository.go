package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRepositoryRepository implements deposit.RepositoryRepository using GORM
type GormRepositoryRepository struct {
	db *gorm.DB
}

// NewGormRepositoryRepository creates a new GormRepositoryRepository
func NewGormRepositoryRepository(db *gorm.DB) *GormRepositoryRepository {
	return &GormRepositoryRepository{db: db}
}

// EntityType returns "repository"
func (r *GormRepositoryRepository) EntityType() string {
	return "repository"
}

// FindByID finds a repository by its ID
func (r *GormRepositoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*deposit.Repository, error) {
	var model models.RepositoryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// FindByKey finds a repository by its configuration key
func (r *GormRepositoryRepository) FindByKey(ctx context.Context, key string) (*deposit.Repository, error) {
	var model models.RepositoryModel
	if err := r.db.WithContext(ctx).Where("repo_key = ?", key).First(&model).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return model.ToDomain(), nil
}

// Create inserts a new repository
func (r *GormRepositoryRepository) Create(ctx context.Context, repo *deposit.Repository) error {
	return r.db.WithContext(ctx).Create(models.RepositoryModelFromDomain(repo)).Error
}

// Update saves a repository with optimistic locking
func (r *GormRepositoryRepository) Update(ctx context.Context, repo *deposit.Repository) error {
	err := versionedUpdate(ctx, r.db, &models.RepositoryModel{}, r.EntityType(), repo.ID, repo.Version, map[string]any{
		"name":       repo.Name,
		"repo_key":   repo.Key,
		"updated_at": repo.UpdatedAt,
	})
	if err != nil {
		return err
	}
	repo.SetVersion(repo.Version + 1)
	return nil
}
