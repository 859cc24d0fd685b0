package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// GormUserKeyRepository implements UserKeyRepository using GORM.
type GormUserKeyRepository struct {
	db *gorm.DB
}

// NewGormUserKeyRepository creates a new GORM-based key repository.
func NewGormUserKeyRepository(db *gorm.DB) *GormUserKeyRepository {
	return &GormUserKeyRepository{db: db}
}

// Upsert stores the key, replacing an existing key for the same provider.
func (r *GormUserKeyRepository) Upsert(ctx context.Context, key *domain.UserKey) error {
	model := &domain.UserKeyModel{
		UserID:       key.UserID,
		Provider:     string(key.Provider),
		EncryptedKey: key.EncryptedKey,
		Nonce:        key.Nonce,
		Masked:       key.Masked,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{"encrypted_key", "iv", "masked", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// Get returns the key for one provider.
func (r *GormUserKeyRepository) Get(ctx context.Context, userID string, provider domain.Provider) (*domain.UserKey, error) {
	var model domain.UserKeyModel
	result := r.db.WithContext(ctx).First(&model, "user_id = ? AND provider = ?", userID, string(provider))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// List returns all keys of a user ordered by provider.
func (r *GormUserKeyRepository) List(ctx context.Context, userID string) ([]*domain.UserKey, error) {
	var models []domain.UserKeyModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("provider ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	keys := make([]*domain.UserKey, len(models))
	for i := range models {
		keys[i] = models[i].ToDomain()
	}
	return keys, nil
}

// Delete removes the key for one provider.
func (r *GormUserKeyRepository) Delete(ctx context.Context, userID string, provider domain.Provider) error {
	result := r.db.WithContext(ctx).Delete(&domain.UserKeyModel{}, "user_id = ? AND provider = ?", userID, string(provider))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// HasAny reports whether the user stored at least one key.
func (r *GormUserKeyRepository) HasAny(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.UserKeyModel{}).Where("user_id = ?", userID).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
