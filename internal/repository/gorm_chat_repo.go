package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// GormChatRepository implements ChatRepository using GORM.
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a new GORM-based chat repository.
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

// Create creates a new chat.
func (r *GormChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}

	model := domain.ChatToModel(chat)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return handleError(err)
	}

	chat.CreatedAt = model.CreatedAt
	chat.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a chat by ID.
func (r *GormChatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	var model domain.ChatModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GetByIDs retrieves the user's chats among ids, keeping the order of ids.
func (r *GormChatRepository) GetByIDs(ctx context.Context, userID string, ids []string) ([]*domain.Chat, error) {
	if len(ids) == 0 {
		return []*domain.Chat{}, nil
	}

	var models []domain.ChatModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&models).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Chat, len(models))
	for i := range models {
		byID[models[i].ID] = models[i].ToDomain()
	}
	chats := make([]*domain.Chat, 0, len(models))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			chats = append(chats, c)
		}
	}
	return chats, nil
}

// ListByUser lists a user's chats, pinned first then most recently updated.
// A non-nil projectID restricts the list to that project.
func (r *GormChatRepository) ListByUser(ctx context.Context, userID string, projectID *string) ([]*domain.Chat, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}

	var models []domain.ChatModel
	if err := q.Order("pinned DESC").Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	chats := make([]*domain.Chat, len(models))
	for i := range models {
		chats[i] = models[i].ToDomain()
	}
	return chats, nil
}

// Update writes the mutable fields of a chat.
func (r *GormChatRepository) Update(ctx context.Context, chat *domain.Chat) error {
	result := r.db.WithContext(ctx).Model(&domain.ChatModel{}).
		Where("id = ?", chat.ID).
		Updates(map[string]interface{}{
			"title":         chat.Title,
			"model":         chat.Model,
			"system_prompt": chat.SystemPrompt,
			"pinned":        chat.Pinned,
			"pinned_at":     chat.PinnedAt,
			"project_id":    chat.ProjectID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// Touch bumps updated_at so the chat sorts as recent.
func (r *GormChatRepository) Touch(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.ChatModel{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", now).Error
}

// Delete removes a chat together with its messages and attachment records.
func (r *GormChatRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", id).Delete(&domain.MessageModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", id).Delete(&domain.AttachmentModel{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.ChatModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrChatNotFound
		}
		return nil
	})
}

// SearchTitles matches chat titles case-insensitively.
func (r *GormChatRepository) SearchTitles(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var models []domain.ChatModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(title) LIKE ? ESCAPE '!'", userID, pattern).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	chats := make([]*domain.Chat, len(models))
	for i := range models {
		chats[i] = models[i].ToDomain()
	}
	return chats, nil
}

// DetachProject moves the chats of a project back to the top level.
func (r *GormChatRepository) DetachProject(ctx context.Context, projectID string) error {
	return r.db.WithContext(ctx).Model(&domain.ChatModel{}).
		Where("project_id = ?", projectID).
		Update("project_id", nil).Error
}

func escapeLike(s string) string {
	return strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`).Replace(s)
}
