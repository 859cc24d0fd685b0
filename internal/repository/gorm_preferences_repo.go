package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// GormPreferencesRepository implements PreferencesRepository using GORM.
type GormPreferencesRepository struct {
	db *gorm.DB
}

// NewGormPreferencesRepository creates a new GORM-based preferences repository.
func NewGormPreferencesRepository(db *gorm.DB) *GormPreferencesRepository {
	return &GormPreferencesRepository{db: db}
}

// Get returns the stored preferences or ErrPreferencesNotFound.
func (r *GormPreferencesRepository) Get(ctx context.Context, userID string) (domain.UserPreferences, error) {
	var model domain.PreferencesModel
	result := r.db.WithContext(ctx).First(&model, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return domain.UserPreferences{}, ErrPreferencesNotFound
		}
		return domain.UserPreferences{}, result.Error
	}
	return model.ToDomain(), nil
}

// Upsert writes the full preference row.
func (r *GormPreferencesRepository) Upsert(ctx context.Context, userID string, prefs domain.UserPreferences) error {
	model := domain.PreferencesToModel(userID, prefs)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"prompt_suggestions",
				"show_tool_invocations",
				"show_conversation_previews",
				"multi_model_enabled",
				"hidden_models",
				"updated_at",
			}),
		}).
		Create(model).Error
}
