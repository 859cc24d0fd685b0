package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// GormAttachmentRepository implements AttachmentRepository using GORM.
type GormAttachmentRepository struct {
	db *gorm.DB
}

// NewGormAttachmentRepository creates a new GORM-based attachment repository.
func NewGormAttachmentRepository(db *gorm.DB) *GormAttachmentRepository {
	return &GormAttachmentRepository{db: db}
}

// Create records an uploaded file.
func (r *GormAttachmentRepository) Create(ctx context.Context, a *domain.Attachment) error {
	model := &domain.AttachmentModel{
		ID:          a.ID,
		UserID:      a.UserID,
		ChatID:      a.ChatID,
		Name:        a.Name,
		ContentType: a.ContentType,
		Size:        a.Size,
		StorageKey:  a.StorageKey,
		URL:         a.URL,
		CreatedAt:   a.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return handleError(err)
	}
	a.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves an attachment by ID.
func (r *GormAttachmentRepository) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	var model domain.AttachmentModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAttachmentNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListByChat returns the attachments of a chat, oldest first.
func (r *GormAttachmentRepository) ListByChat(ctx context.Context, chatID string) ([]*domain.Attachment, error) {
	var models []domain.AttachmentModel
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Attachment, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

// CountSince counts the user's uploads created at or after since.
func (r *GormAttachmentRepository) CountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AttachmentModel{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// DeleteByChat removes the attachment records of a chat.
func (r *GormAttachmentRepository) DeleteByChat(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&domain.AttachmentModel{}).Error
}
