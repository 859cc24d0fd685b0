package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/pkg/database"
)

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// GetByID retrieves a user by ID.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var model domain.UserModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// GetByBillingCustomerID retrieves the user linked to a billing customer.
func (r *GormUserRepository) GetByBillingCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	if customerID == "" {
		return nil, ErrUserNotFound
	}
	var model domain.UserModel
	result := r.db.WithContext(ctx).First(&model, "billing_customer_id = ?", customerID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Ensure inserts the user row if missing. Concurrent first requests of the
// same user race safely: the loser's insert is a no-op.
func (r *GormUserRepository) Ensure(ctx context.Context, u domain.NewUser, favoriteModels []string) (bool, error) {
	model := &domain.UserModel{
		ID:                 u.ID,
		Email:              u.Email,
		DisplayName:        u.DisplayName,
		ProfileImage:       u.ProfileImage,
		Anonymous:          u.Anonymous,
		FavoriteModels:     database.StringArray(favoriteModels),
		SubscriptionType:   string(domain.PlanFree),
		SubscriptionStatus: string(domain.StatusInactive),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, handleError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateFavoriteModels replaces the favorite model list.
func (r *GormUserRepository) UpdateFavoriteModels(ctx context.Context, id string, models []string) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"favorite_models": database.StringArray(models),
	})
}

// SetBillingCustomerID links the user to a billing provider customer.
func (r *GormUserRepository) SetBillingCustomerID(ctx context.Context, id, customerID string) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"billing_customer_id": customerID,
	})
}

// UpdateSubscription stores the plan set by a billing event.
func (r *GormUserRepository) UpdateSubscription(ctx context.Context, id string, change domain.SubscriptionChange) error {
	cols := map[string]interface{}{
		"subscription_type":   string(change.Type),
		"subscription_status": string(change.Status),
		"premium":             change.Status == domain.StatusActive && change.Type != domain.PlanFree,
	}
	if change.StartedAt != nil {
		cols["subscription_started_at"] = *change.StartedAt
	}
	if change.EndsAt != nil {
		cols["subscription_ends_at"] = *change.EndsAt
	}
	return r.updateColumns(ctx, id, cols)
}

// IncrementMessageCount counts one free-model message.
func (r *GormUserRepository) IncrementMessageCount(ctx context.Context, id string, now time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"message_count":       gorm.Expr("message_count + ?", 1),
		"daily_message_count": gorm.Expr("daily_message_count + ?", 1),
		"last_active_at":      now,
	})
}

// IncrementProCount counts one pro-model message.
func (r *GormUserRepository) IncrementProCount(ctx context.Context, id string, now time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"daily_pro_message_count": gorm.Expr("daily_pro_message_count + ?", 1),
		"last_active_at":          now,
	})
}

// ResetProCount starts a new pro-model day for the user.
func (r *GormUserRepository) ResetProCount(ctx context.Context, id string, now time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"daily_pro_message_count": 0,
		"daily_pro_reset":         now,
	})
}

// ResetMonthlyCounts clears message_count for users on a monthly quota:
// active paid plans and users who own at least one provider key.
func (r *GormUserRepository) ResetMonthlyCounts(ctx context.Context) (int64, error) {
	hasKeys := r.db.Model(&domain.UserKeyModel{}).Select("user_id")
	result := r.db.WithContext(ctx).Model(&domain.UserModel{}).
		Where("(subscription_status = ? AND subscription_type <> ?) OR id IN (?)",
			string(domain.StatusActive), string(domain.PlanFree), hasKeys).
		Where("message_count > 0").
		Update("message_count", 0)
	return result.RowsAffected, result.Error
}

// ResetDailyCounts clears the informational daily counter.
func (r *GormUserRepository) ResetDailyCounts(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.UserModel{}).
		Where("daily_message_count > 0").
		Updates(map[string]interface{}{
			"daily_message_count": 0,
			"daily_reset":         now,
		})
	return result.RowsAffected, result.Error
}

func (r *GormUserRepository) updateColumns(ctx context.Context, id string, cols map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&domain.UserModel{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return handleError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
