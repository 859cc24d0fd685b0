package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// GormProjectRepository implements ProjectRepository using GORM.
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates a new GORM-based project repository.
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	return &GormProjectRepository{db: db}
}

// Create creates a new project.
func (r *GormProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	p.ID = uuid.New().String()
	model := &domain.ProjectModel{ID: p.ID, UserID: p.UserID, Name: p.Name}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return handleError(err)
	}
	p.CreatedAt = model.CreatedAt
	p.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a project by ID.
func (r *GormProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	var model domain.ProjectModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListByUser lists a user's projects, newest first.
func (r *GormProjectRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Project, error) {
	var models []domain.ProjectModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	projects := make([]*domain.Project, len(models))
	for i := range models {
		projects[i] = models[i].ToDomain()
	}
	return projects, nil
}

// Rename changes a project's name.
func (r *GormProjectRepository) Rename(ctx context.Context, id, name string) error {
	result := r.db.WithContext(ctx).Model(&domain.ProjectModel{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// Delete removes a project and detaches its chats.
func (r *GormProjectRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.ChatModel{}).Where("project_id = ?", id).Update("project_id", nil).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.ProjectModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrProjectNotFound
		}
		return nil
	})
}
