package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create inserts one message and fills its id and timestamp.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	return nil
}

// CreateBatch inserts messages in one statement, preserving their order.
func (r *GormMessageRepository) CreateBatch(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	models := make([]*domain.MessageModel, len(msgs))
	for i, m := range msgs {
		models[i] = domain.MessageToModel(m)
	}
	if err := r.db.WithContext(ctx).CreateInBatches(models, 100).Error; err != nil {
		return err
	}
	for i, m := range models {
		msgs[i].ID = m.ID
		msgs[i].CreatedAt = m.CreatedAt
	}
	return nil
}

// ListByChat returns the messages of a chat in creation order.
func (r *GormMessageRepository) ListByChat(ctx context.Context, chatID string) ([]*domain.Message, error) {
	var models []domain.MessageModel
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	msgs := make([]*domain.Message, len(models))
	for i := range models {
		msgs[i] = models[i].ToDomain()
	}
	return msgs, nil
}

// DeleteByChat removes every message of a chat.
func (r *GormMessageRepository) DeleteByChat(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&domain.MessageModel{}).Error
}
